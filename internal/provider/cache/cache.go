package cache

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"shippingquote/internal/logger"
	"shippingquote/internal/provider"
)

// Store keeps quote lists by key until they expire.
type Store interface {
	// Get returns the cached quotes and whether the key was present.
	Get(ctx context.Context, key string) ([]provider.Quote, bool, error)
	Set(ctx context.Context, key string, quotes []provider.Quote, ttl time.Duration) error
}

// Provider caches results per (postal code, weight) for a TTL.
// Empty results are never stored, so an upstream outage is retried on the
// next request instead of being served from cache. Store failures fall
// through to the wrapped provider.
type Provider struct {
	P     provider.Provider
	Store Store
	TTL   time.Duration
	Log   *zap.Logger
}

func (c *Provider) Name() string { return c.P.Name() }

func (c *Provider) Calculate(ctx context.Context, postalCode string, weightGrams float64) ([]provider.Quote, error) {
	if c.Store == nil || c.TTL <= 0 {
		return c.P.Calculate(ctx, postalCode, weightGrams)
	}
	log := logger.FromContext(ctx, c.Log).With(zap.String("provider", c.P.Name()))
	key := Key(c.P.Name(), postalCode, weightGrams)

	cached, ok, err := c.Store.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn("quote cache read failed", zap.String("key", key), zap.Error(err))
	case ok:
		return cached, nil
	}

	fresh, err := c.P.Calculate(ctx, postalCode, weightGrams)
	if err != nil || len(fresh) == 0 {
		return fresh, err
	}
	if err := c.Store.Set(ctx, key, fresh, c.TTL); err != nil {
		log.Warn("quote cache write failed", zap.String("key", key), zap.Error(err))
	}
	return fresh, nil
}

// Key identifies one provider answer.
func Key(providerName, postalCode string, weightGrams float64) string {
	return "shipping:quote:" + providerName + ":" + provider.DigitsOnly(postalCode) + ":" + strconv.FormatFloat(weightGrams, 'f', -1, 64)
}
