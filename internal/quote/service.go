// Package quote is the entry point for shipping quotes: it validates the
// request, runs the aggregation and guarantees a non-empty answer.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"shippingquote/internal/logger"
	"shippingquote/internal/pricing"
	"shippingquote/internal/provider"
)

var (
	ErrInvalidWeight     = errors.New("weight must be greater than zero")
	ErrInvalidPostalCode = errors.New("postal code must have at least 5 characters")
)

// minPostalCodeChars is checked before non-digits are stripped. Providers
// apply the strict 8 digit rule themselves.
const minPostalCodeChars = 5

// Aggregator produces the merged quote list for a destination and weight.
type Aggregator interface {
	CalculateAll(ctx context.Context, postalCode string, weightGrams float64) []provider.Quote
}

type Request struct {
	PostalCode  string  `json:"postalCode"`
	WeightGrams float64 `json:"weightGrams"`
}

type Response struct {
	Options              []provider.Quote `json:"options"`
	NormalizedPostalCode string           `json:"normalizedPostalCode"`
}

// Service answers quote requests. Identical requests in flight at the same
// time share one aggregation.
type Service struct {
	agg      Aggregator
	fallback func(weightGrams float64) []provider.Quote
	log      *zap.Logger
	group    singleflight.Group
}

func NewService(agg Aggregator, log *zap.Logger) *Service {
	return &Service{agg: agg, fallback: pricing.Fallback, log: logger.OrNop(log)}
}

// GetQuote validates req and returns the available options. Only invalid
// input produces an error; every valid request gets at least one option.
func (s *Service) GetQuote(ctx context.Context, req Request) (Response, error) {
	if !(req.WeightGrams > 0) || math.IsInf(req.WeightGrams, 1) {
		return Response{}, ErrInvalidWeight
	}
	if utf8.RuneCountInString(req.PostalCode) < minPostalCodeChars {
		return Response{}, ErrInvalidPostalCode
	}

	normalized := provider.DigitsOnly(req.PostalCode)
	key := normalized + "|" + strconv.FormatFloat(req.WeightGrams, 'f', -1, 64)

	// A caller that goes away must not cancel the aggregation shared with
	// the other waiters; provider deadlines still bound it. Each waiter
	// still stops at its own deadline and answers with fallback pricing.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.calculate(shared, normalized, req.WeightGrams), nil
	})

	var options []provider.Quote
	select {
	case res := <-ch:
		options = res.Val.([]provider.Quote)
	case <-ctx.Done():
		logger.FromContext(ctx, s.log).Warn("quote deadline reached before aggregation finished, using fallback pricing",
			zap.String("postal_code", normalized), zap.Error(ctx.Err()))
		options = s.fallback(req.WeightGrams)
	}

	return Response{
		Options:              append([]provider.Quote(nil), options...),
		NormalizedPostalCode: normalized,
	}, nil
}

func (s *Service) calculate(ctx context.Context, postalCode string, weightGrams float64) (options []provider.Quote) {
	log := logger.FromContext(ctx, s.log)
	defer func() {
		if r := recover(); r != nil {
			log.Error("aggregation panicked, using fallback pricing",
				zap.String("postal_code", postalCode),
				zap.Error(fmt.Errorf("panic: %v", r)))
			options = s.fallback(weightGrams)
		}
	}()

	options = s.agg.CalculateAll(ctx, postalCode, weightGrams)
	if len(options) == 0 {
		log.Warn("aggregation returned no options, using fallback pricing", zap.String("postal_code", postalCode))
		options = s.fallback(weightGrams)
	}
	return options
}
