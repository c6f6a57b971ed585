// Package courier implements formula-priced couriers that quote without an
// upstream call: price = round(grams * ratePerGram, 2) + baseFee per tier.
package courier

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shippingquote/internal/logger"
	"shippingquote/internal/provider"
)

// Tier is one service level of a formula courier.
type Tier struct {
	Label       string
	RatePerGram decimal.Decimal
	BaseFee     decimal.Decimal
	Transit     string
}

type Config struct {
	Name  string
	Tiers []Tier
}

// Jadlog is the default configuration of the first formula courier.
func Jadlog() Config {
	return Config{
		Name: "Jadlog",
		Tiers: []Tier{
			{Label: "Package", RatePerGram: decimal.RequireFromString("0.04"), BaseFee: decimal.RequireFromString("18.90"), Transit: provider.BusinessDays("3-5")},
			{Label: ".Com", RatePerGram: decimal.RequireFromString("0.06"), BaseFee: decimal.RequireFromString("26.90"), Transit: provider.BusinessDays("1-2")},
		},
	}
}

// Loggi is the default configuration of the second formula courier.
func Loggi() Config {
	return Config{
		Name: "Loggi",
		Tiers: []Tier{
			{Label: "Econômico", RatePerGram: decimal.RequireFromString("0.03"), BaseFee: decimal.RequireFromString("14.90"), Transit: provider.BusinessDays("4-7")},
			{Label: "Expresso", RatePerGram: decimal.RequireFromString("0.05"), BaseFee: decimal.RequireFromString("22.90"), Transit: provider.BusinessDays("1-3")},
		},
	}
}

type Provider struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Courier"
	}
	return &Provider{cfg: cfg, log: logger.OrNop(log).Named(cfg.Name)}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Calculate(_ context.Context, _ string, weightGrams float64) ([]provider.Quote, error) {
	if !(weightGrams > 0) || math.IsInf(weightGrams, 0) {
		p.log.Warn("weight must be positive and finite, no quote", zap.Float64("weight_grams", weightGrams))
		return nil, nil
	}
	grams := decimal.NewFromFloat(weightGrams)
	out := make([]provider.Quote, 0, len(p.cfg.Tiers))
	for _, t := range p.cfg.Tiers {
		price := grams.Mul(t.RatePerGram).Round(2).Add(t.BaseFee)
		if price.IsNegative() {
			continue
		}
		out = append(out, provider.Quote{Label: t.Label, Price: price, EstimatedTransit: t.Transit})
	}
	return out, nil
}
