// Package frenet quotes shipping through the Frenet rate aggregation API,
// which answers with one entry per carrier service it can offer.
package frenet

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shippingquote/internal/logger"
	"shippingquote/internal/provider"
)

type Config struct {
	Name         string  // display name, default: Frenet
	SellerCEP    string  // origin postal code
	InvoiceValue float64 // declared shipment value, default: 100
	Category     string  // synthetic item category, default: Cosmeticos
	Country      string  // recipient country, default: BR
}

// Provider adapts the Frenet client to provider.Provider.
type Provider struct {
	cfg    Config
	client *Client
	log    *zap.Logger
}

func New(cfg Config, client *Client, log *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Frenet"
	}
	if cfg.InvoiceValue <= 0 {
		cfg.InvoiceValue = 100
	}
	if cfg.Category == "" {
		cfg.Category = "Cosmeticos"
	}
	if cfg.Country == "" {
		cfg.Country = "BR"
	}
	if client == nil {
		client = NewClient("")
	}
	return &Provider{cfg: cfg, client: client, log: logger.OrNop(log).Named(cfg.Name)}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Calculate(ctx context.Context, postalCode string, weightGrams float64) ([]provider.Quote, error) {
	dest := provider.DigitsOnly(postalCode)
	if len(dest) != 8 {
		p.log.Warn("invalid destination postal code", zap.String("postal_code", postalCode))
		return nil, nil
	}

	kilos := provider.GramsToKilograms(weightGrams, 0)
	box := BoxFor(kilos)
	req := QuoteRequest{
		SellerCEP:            provider.DigitsOnly(p.cfg.SellerCEP),
		RecipientCEP:         dest,
		ShipmentInvoiceValue: p.cfg.InvoiceValue,
		ShippingItemArray: []ShippingItem{{
			Height:   box.Height,
			Length:   box.Length,
			Width:    box.Width,
			Weight:   kilos,
			Quantity: 1,
			SKU:      "SKU-" + strings.ToUpper(uuid.NewString()[:8]),
			Category: p.cfg.Category,
		}},
		RecipientCountry: p.cfg.Country,
	}

	services, err := p.client.Quote(ctx, req)
	if err != nil {
		p.log.Warn("quote request failed", zap.String("postal_code", dest), zap.Error(err))
		return nil, nil
	}

	out := make([]provider.Quote, 0, len(services))
	for _, s := range services {
		q, err := toQuote(s)
		if err != nil {
			p.log.Debug("skipping service", zap.String("carrier", s.Carrier), zap.String("service", s.ServiceDescription), zap.Error(err))
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func toQuote(s ShippingService) (provider.Quote, error) {
	if s.Error {
		return provider.Quote{}, fmt.Errorf("service error: %s", s.Msg)
	}
	price, err := parsePrice(string(s.ShippingPrice))
	if err != nil {
		return provider.Quote{}, err
	}
	if !price.IsPositive() {
		return provider.Quote{}, fmt.Errorf("non-positive price %s", price)
	}
	return provider.Quote{
		Label:            strings.TrimSpace(s.Carrier) + " - " + strings.TrimSpace(s.ServiceDescription),
		Price:            price,
		EstimatedTransit: provider.BusinessDays(string(s.DeliveryTime)),
	}, nil
}

// parsePrice accepts the dot-decimal strings the API sends and falls back to
// the comma-decimal form some carriers pass through.
func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		return provider.ParseBRL(s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	return d, nil
}

// Box is a package size in whole centimeters.
type Box struct {
	Height int
	Length int
	Width  int
}

// BoxFor grows the box linearly with weight from a 2x15x10 cm minimum.
func BoxFor(kilos float64) Box {
	if kilos < 0 {
		kilos = 0
	}
	return Box{
		Height: int(math.Ceil(2 + 2*kilos)),
		Length: int(math.Ceil(15 + 3*kilos)),
		Width:  int(math.Ceil(10 + 2*kilos)),
	}
}
