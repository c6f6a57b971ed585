// Package aggregate fans a quote request out to every registered provider
// and merges the answers into one price-ordered list.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shippingquote/internal/logger"
	"shippingquote/internal/pricing"
	"shippingquote/internal/provider"
)

const (
	DefaultProviderTimeout = 5 * time.Second

	instrumentationName = "shippingquote/internal/aggregate"
)

// Outcome labels recorded per provider call.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
)

var errPanic = errors.New("provider panicked")

// Aggregator queries a fixed, ordered set of providers concurrently.
type Aggregator struct {
	providers []provider.Provider
	timeout   time.Duration
	fallback  func(weightGrams float64) []provider.Quote
	log       *zap.Logger
	tracer    trace.Tracer
	calls     metric.Int64Counter
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout bounds each provider call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger used for provider failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.log = logger.OrNop(l) }
}

// WithFallback replaces the pricing used when no provider answered.
func WithFallback(f func(weightGrams float64) []provider.Quote) Option {
	return func(a *Aggregator) {
		if f != nil {
			a.fallback = f
		}
	}
}

// WithTracerProvider sets the tracer provider used for per-provider spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Aggregator) {
		if tp != nil {
			a.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMeterProvider sets the meter provider used for the call counter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *Aggregator) {
		if mp != nil {
			a.calls = newCallCounter(mp.Meter(instrumentationName))
		}
	}
}

// New builds an aggregator over providers. The slice order is the
// tie-break order for equally priced quotes and is never changed afterwards.
func New(providers []provider.Provider, opts ...Option) *Aggregator {
	a := &Aggregator{
		providers: append([]provider.Provider(nil), providers...),
		timeout:   DefaultProviderTimeout,
		fallback:  pricing.Fallback,
		log:       zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
		calls:     newCallCounter(otel.Meter(instrumentationName)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func newCallCounter(m metric.Meter) metric.Int64Counter {
	c, err := m.Int64Counter("shipping.provider.calls",
		metric.WithDescription("Provider quote calls by outcome"),
		metric.WithUnit("{call}"))
	if err != nil {
		otel.Handle(err)
	}
	return c
}

// Providers returns the registered provider names in registration order.
func (a *Aggregator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// CalculateAll asks every provider for quotes and returns them with labels
// qualified by provider name, ordered by ascending price. Providers that
// fail, panic or time out contribute nothing. When nothing at all comes
// back the fallback pricing is returned instead.
func (a *Aggregator) CalculateAll(ctx context.Context, postalCode string, weightGrams float64) []provider.Quote {
	results := make([][]provider.Quote, len(a.providers))

	// Every task returns nil so one failing provider never cancels its siblings.
	var g errgroup.Group
	for i, p := range a.providers {
		g.Go(func() error {
			results[i] = a.call(ctx, p, postalCode, weightGrams)
			return nil
		})
	}
	_ = g.Wait()

	var merged []provider.Quote
	for i, quotes := range results {
		name := a.providers[i].Name()
		for _, q := range quotes {
			q.Label = name + " - " + q.Label
			merged = append(merged, q)
		}
	}

	if len(merged) == 0 {
		logger.FromContext(ctx, a.log).Warn("no provider returned quotes, using fallback pricing",
			zap.String("postal_code", postalCode), zap.Float64("weight_grams", weightGrams))
		return a.fallback(weightGrams)
	}

	pricing.SortByPrice(merged)
	return merged
}

type callResult struct {
	quotes []provider.Quote
	err    error
}

// call runs one provider under its own deadline. The provider runs on a
// separate goroutine so a call that ignores its context still cannot hold
// the aggregate past the deadline.
func (a *Aggregator) call(ctx context.Context, p provider.Provider, postalCode string, weightGrams float64) []provider.Quote {
	name := p.Name()
	ctx, span := a.tracer.Start(ctx, "provider.Calculate", trace.WithAttributes(attribute.String("provider", name)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	log := logger.FromContext(ctx, a.log).With(zap.String("provider", name))
	start := time.Now()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		quotes, err := p.Calculate(ctx, postalCode, weightGrams)
		done <- callResult{quotes: quotes, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = callResult{err: ctx.Err()}
	}

	outcome := OutcomeOK
	switch {
	case errors.Is(res.err, errPanic):
		outcome = OutcomePanic
	case errors.Is(res.err, context.DeadlineExceeded):
		outcome = OutcomeTimeout
	case res.err != nil:
		outcome = OutcomeError
	case len(res.quotes) == 0:
		outcome = OutcomeEmpty
	}

	if a.calls != nil {
		a.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", name),
			attribute.String("outcome", outcome)))
	}
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Int("quotes", len(res.quotes)))

	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, outcome)
		log.Warn("provider call failed",
			zap.String("outcome", outcome),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(res.err))
		return nil
	}

	valid := make([]provider.Quote, 0, len(res.quotes))
	for _, q := range res.quotes {
		if q.Price.IsNegative() {
			log.Warn("dropping quote with negative price", zap.String("label", q.Label), zap.Stringer("price", q.Price))
			continue
		}
		valid = append(valid, q)
	}
	log.Debug("provider call finished",
		zap.String("outcome", outcome),
		zap.Int("quotes", len(valid)),
		zap.Duration("elapsed", time.Since(start)))
	return valid
}
