package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Quote is the normalized shape returned by all providers.
// Price is a decimal in the store currency (BRL) and is never negative.
type Quote struct {
	Label            string          `json:"carrierLabel"`
	Price            decimal.Decimal `json:"price"`
	EstimatedTransit string          `json:"estimatedTransit"`
}

// Provider quotes shipping for a destination postal code and a package weight.
//
// Implementations are fail-soft: upstream failures are logged and reported as
// an empty result with a nil error. The error return is reserved for
// decorators (rate limiting, caching) that cannot produce a result at all.
//
//go:generate mockgen -package=providermock -destination=providermock/mock_provider.go -source=provider.go Provider
type Provider interface {
	Name() string
	Calculate(ctx context.Context, postalCode string, weightGrams float64) ([]Quote, error)
}

// DigitsOnly strips every non-digit character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPostalCode reports whether s holds exactly 8 digits once non-digits are stripped.
func ValidPostalCode(s string) bool {
	return len(DigitsOnly(s)) == 8
}

// GramsToKilograms converts grams to kilograms, never returning less than min.
func GramsToKilograms(grams float64, min float64) float64 {
	kg := grams / 1000
	if kg < min {
		return min
	}
	return kg
}

// ParseBRL parses a Brazilian formatted amount such as "1.234,56".
// Dots are thousands separators and the comma is the decimal separator.
func ParseBRL(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// BusinessDays renders a transit estimate the way every carrier label shows it.
func BusinessDays(days string) string {
	return strings.TrimSpace(days) + " dias úteis"
}
