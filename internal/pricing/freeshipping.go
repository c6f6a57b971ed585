package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"shippingquote/internal/provider"
)

const (
	DefaultStandardLabel = "Correios - PAC"
	DefaultMarker        = " (Grátis)"
)

var DefaultThreshold = decimal.NewFromInt(200)

// FreeShipping zeroes the standard delivery option once the order total
// reaches Threshold.
type FreeShipping struct {
	Threshold     decimal.Decimal
	StandardLabel string
	Marker        string
}

// DefaultFreeShipping returns the store-wide promotion.
func DefaultFreeShipping() FreeShipping {
	return FreeShipping{Threshold: DefaultThreshold, StandardLabel: DefaultStandardLabel, Marker: DefaultMarker}
}

// Apply returns a copy of options with the promotion applied. Options whose
// label is not exactly StandardLabel are returned unchanged, and the input
// slice is never modified.
func (f FreeShipping) Apply(options []provider.Quote, orderTotal decimal.Decimal) []provider.Quote {
	out := make([]provider.Quote, len(options))
	copy(out, options)
	if orderTotal.LessThan(f.Threshold) {
		return out
	}
	for i, q := range out {
		if q.Label != f.StandardLabel {
			continue
		}
		out[i] = provider.Quote{Label: q.Label + f.Marker, Price: decimal.Zero, EstimatedTransit: q.EstimatedTransit}
	}
	return out
}

// ApplyFreeShipping applies the default promotion.
func ApplyFreeShipping(options []provider.Quote, orderTotal decimal.Decimal) []provider.Quote {
	return DefaultFreeShipping().Apply(options, orderTotal)
}

// SortByPrice orders options by ascending price in place. Equal prices keep
// their relative order.
func SortByPrice(options []provider.Quote) {
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Price.LessThan(options[j].Price)
	})
}
