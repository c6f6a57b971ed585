// Package app wires configuration into the provider registry, the
// aggregator and the quote service.
package app

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shippingquote/internal/aggregate"
	"shippingquote/internal/config"
	"shippingquote/internal/httpx"
	"shippingquote/internal/logger"
	"shippingquote/internal/pricing"
	"shippingquote/internal/provider"
	"shippingquote/internal/provider/cache"
	"shippingquote/internal/provider/correios"
	"shippingquote/internal/provider/courier"
	"shippingquote/internal/provider/frenet"
	"shippingquote/internal/provider/ratelimit"
	"shippingquote/internal/quote"
)

// App holds the long-lived components built at startup.
type App struct {
	Providers    []provider.Provider
	Aggregator   *aggregate.Aggregator
	Service      *quote.Service
	FreeShipping pricing.FreeShipping

	redis *redis.Client
}

// Build constructs the registry in its fixed order: Correios, Jadlog, Loggi,
// Frenet. Disabled providers are skipped without changing the others' order.
func Build(cfg config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)

	client := httpx.New(cfg.HTTPClient.Timeout)
	client.Retries = cfg.HTTPClient.Retries
	if cfg.HTTPClient.UserAgent != "" {
		client.UserAgent = cfg.HTTPClient.UserAgent
	}

	a := &App{FreeShipping: pricing.FreeShipping{
		Threshold:     cfg.FreeShipping.Threshold,
		StandardLabel: cfg.FreeShipping.StandardLabel,
		Marker:        cfg.FreeShipping.Marker,
	}}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		a.redis = cache.NewRedisClient(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		store = cache.NewRedisStore(a.redis)
	case "memory":
		store = cache.NewMemoryStore(cfg.Cache.MaxItems)
	}

	withCache := func(p provider.Provider, ttl time.Duration) provider.Provider {
		if store == nil || ttl <= 0 {
			return p
		}
		return &cache.Provider{P: p, Store: store, TTL: ttl, Log: log}
	}

	if cfg.Correios.Enabled {
		p := correios.New(correios.Config{
			URL:         cfg.Correios.URL,
			CompanyCode: cfg.Correios.CompanyCode,
			Password:    cfg.Correios.Password,
			OriginCEP:   cfg.SellerPostalCode,
		}, client, log)
		a.Providers = append(a.Providers, withCache(p, cfg.Correios.CacheTTL))
	}
	if cfg.Jadlog.Enabled {
		a.Providers = append(a.Providers, courier.New(courier.Jadlog(), log))
	}
	if cfg.Loggi.Enabled {
		a.Providers = append(a.Providers, courier.New(courier.Loggi(), log))
	}
	if cfg.Frenet.Enabled {
		if cfg.Frenet.APIToken == "" {
			log.Warn("frenet enabled but no api token set; skipping")
		} else {
			fc := frenet.NewClient(cfg.Frenet.APIToken,
				frenet.WithBaseURL(cfg.Frenet.APIURL),
				frenet.WithHTTPClient(client))
			var p provider.Provider = frenet.New(frenet.Config{
				SellerCEP:    cfg.SellerPostalCode,
				InvoiceValue: cfg.Frenet.InvoiceValue,
			}, fc, log)
			p = ratelimit.Wrap(p, cfg.Frenet.MaxRequestsPerMinute, cfg.Frenet.Burst, cfg.Frenet.MinRequestInterval)
			a.Providers = append(a.Providers, withCache(p, cfg.Frenet.CacheTTL))
		}
	}

	a.Aggregator = aggregate.New(a.Providers,
		aggregate.WithTimeout(cfg.Aggregator.ProviderTimeout),
		aggregate.WithLogger(log.Named("aggregate")))
	a.Service = quote.NewService(a.Aggregator, log.Named("quote"))

	log.Info("provider registry ready", zap.Strings("providers", a.Aggregator.Providers()))
	return a, nil
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
