// Package ratelimit gates provider calls to respect upstream quotas.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shippingquote/internal/provider"
)

// MinInterval wraps a provider and spaces out its upstream calls by at
// least Interval. A caller whose context ends before its turn gives the turn
// back.
type MinInterval struct {
	P        provider.Provider
	Interval time.Duration

	once    sync.Once
	limiter *rate.Limiter
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) Calculate(ctx context.Context, postalCode string, weightGrams float64) ([]provider.Quote, error) {
	if m.Interval > 0 {
		m.once.Do(func() { m.limiter = rate.NewLimiter(rate.Every(m.Interval), 1) })
		if err := wait(ctx, m.limiter); err != nil {
			return nil, err
		}
	}
	return m.P.Calculate(ctx, postalCode, weightGrams)
}

// TokenBucketProvider gates a provider's calls through a token bucket limiter.
type TokenBucketProvider struct {
	P       provider.Provider
	Limiter *rate.Limiter
}

// PerMinute builds a limiter from a requests-per-minute quota and burst.
func PerMinute(rpm, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

func (t *TokenBucketProvider) Name() string { return t.P.Name() }

func (t *TokenBucketProvider) Calculate(ctx context.Context, postalCode string, weightGrams float64) ([]provider.Quote, error) {
	if t.Limiter != nil {
		if err := wait(ctx, t.Limiter); err != nil {
			return nil, err
		}
	}
	return t.P.Calculate(ctx, postalCode, weightGrams)
}

// wait blocks for one event. When the turn would come after the context
// deadline the limiter refuses without reserving; that is reported as
// context.DeadlineExceeded.
func wait(ctx context.Context, lim *rate.Limiter) error {
	err := lim.Wait(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// Wrap applies the configured limit to p: a token bucket when rpm is set,
// otherwise a minimum interval, otherwise p unchanged.
func Wrap(p provider.Provider, rpm, burst int, minInterval time.Duration) provider.Provider {
	switch {
	case rpm > 0:
		return &TokenBucketProvider{P: p, Limiter: PerMinute(rpm, burst)}
	case minInterval > 0:
		return &MinInterval{P: p, Interval: minInterval}
	default:
		return p
	}
}
