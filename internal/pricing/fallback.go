// Package pricing holds the provider-independent pricing rules: the
// weight-based fallback table and the checkout free-shipping promotion.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"shippingquote/internal/provider"
)

var (
	fallbackRatePerGram = decimal.RequireFromString("0.005")
	economyFee          = decimal.RequireFromString("15.90")
	expressFee          = decimal.RequireFromString("25.90")
)

// Fallback returns the Economy and Express tiers priced from weight alone.
// It is used when no provider produced a quote. Negative or non-finite
// weights are priced as zero grams.
func Fallback(weightGrams float64) []provider.Quote {
	if !(weightGrams > 0) || math.IsInf(weightGrams, 0) {
		weightGrams = 0
	}
	base := decimal.NewFromFloat(weightGrams).Mul(fallbackRatePerGram).Round(1)
	return []provider.Quote{
		{Label: "Economy", Price: base.Add(economyFee), EstimatedTransit: provider.BusinessDays("4-9")},
		{Label: "Express", Price: base.Add(expressFee), EstimatedTransit: provider.BusinessDays("1-3")},
	}
}
