package app_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"shippingquote/internal/app"
	"shippingquote/internal/config"
	"shippingquote/internal/provider/cache"
	"shippingquote/internal/quote"
)

func baseConfig() config.Config {
	return config.Config{
		HTTPClient:       config.HTTPClient{Timeout: time.Second},
		SellerPostalCode: "01001000",
		Aggregator:       config.Aggregator{ProviderTimeout: time.Second},
		Correios:         config.Correios{Enabled: true, URL: "http://127.0.0.1:0/calc"},
		Jadlog:           config.Courier{Enabled: true},
		Loggi:            config.Courier{Enabled: true},
		Frenet:           config.Frenet{Enabled: true, APIToken: "tok", APIURL: "http://127.0.0.1:0"},
		Cache:            config.Cache{Backend: "none"},
		FreeShipping: config.FreeShipping{
			Threshold:     decimal.NewFromInt(200),
			StandardLabel: "Correios - PAC",
			Marker:        " (Grátis)",
		},
	}
}

func TestBuild_RegistrationOrder(t *testing.T) {
	t.Parallel()

	a, err := app.Build(baseConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.Equal(t, []string{"Correios", "Jadlog", "Loggi", "Frenet"}, a.Aggregator.Providers())
	require.True(t, decimal.NewFromInt(200).Equal(a.FreeShipping.Threshold))
}

func TestBuild_SkipsDisabledAndTokenlessProviders(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Jadlog.Enabled = false
	cfg.Frenet.APIToken = ""

	core, logs := observer.New(zap.WarnLevel)
	a, err := app.Build(cfg, zap.New(core))
	require.NoError(t, err)

	require.Equal(t, []string{"Correios", "Loggi"}, a.Aggregator.Providers())
	require.Equal(t, 1, logs.FilterMessageSnippet("frenet").Len())
}

func TestBuild_CacheBackends(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Cache = config.Cache{Backend: "memory", MaxItems: 10}
	cfg.Correios.CacheTTL = time.Minute
	cfg.Frenet.CacheTTL = 0

	a, err := app.Build(cfg, nil)
	require.NoError(t, err)

	_, cached := a.Providers[0].(*cache.Provider)
	require.True(t, cached, "correios should be cached")
	_, cached = a.Providers[3].(*cache.Provider)
	require.False(t, cached, "frenet has no ttl")

	cfg.Cache = config.Cache{Backend: "redis", Redis: config.Redis{Addr: "127.0.0.1:0"}}
	a, err = app.Build(cfg, nil)
	require.NoError(t, err)
	_, cached = a.Providers[0].(*cache.Provider)
	require.True(t, cached)
	require.NoError(t, a.Close())
}

func TestBuild_ServiceAnswersWithCouriersOnly(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Correios.Enabled = false
	cfg.Frenet.Enabled = false

	a, err := app.Build(cfg, nil)
	require.NoError(t, err)

	res, err := a.Service.GetQuote(t.Context(), quote.Request{PostalCode: "01310-100", WeightGrams: 1500})
	require.NoError(t, err)
	require.Len(t, res.Options, 4)
	require.Equal(t, "Loggi - Econômico", res.Options[0].Label)
}
