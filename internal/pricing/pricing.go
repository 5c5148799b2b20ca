// Package pricing estimates a variant price from a known price at another
// pack size.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// poundFactors maps a unit word to its weight in pounds. Volume units use the
// same scale so that liters and milliliters can be compared with pounds.
var poundFactors = map[string]decimal.Decimal{
	"pound":     decimal.NewFromInt(1),
	"pounds":    decimal.NewFromInt(1),
	"lb":        decimal.NewFromInt(1),
	"lbs":       decimal.NewFromInt(1),
	"kg":        decimal.RequireFromString("2.20462"),
	"kgs":       decimal.RequireFromString("2.20462"),
	"kilogram":  decimal.RequireFromString("2.20462"),
	"kilograms": decimal.RequireFromString("2.20462"),
	"gram":      decimal.RequireFromString("0.0022046"),
	"grams":     decimal.RequireFromString("0.0022046"),
	"g":         decimal.RequireFromString("0.0022046"),
	"gm":        decimal.RequireFromString("0.0022046"),
	"ml":        decimal.RequireFromString("0.0022"),
	"liter":     decimal.RequireFromString("2.2"),
	"liters":    decimal.RequireFromString("2.2"),
	"litre":     decimal.RequireFromString("2.2"),
	"litres":    decimal.RequireFromString("2.2"),
	"l":         decimal.RequireFromString("2.2"),
}

type Label struct {
	Value decimal.Decimal
	Unit  string
}

// ParseLabel reads "<n> <unit>" or "<a/b> <unit>". Unit words are matched
// case-insensitively against the conversion table.
func ParseLabel(label string) (Label, bool) {
	fields := strings.Fields(strings.ToLower(label))
	if len(fields) != 2 {
		return Label{}, false
	}
	value, ok := parseQuantity(fields[0])
	if !ok || !value.IsPositive() {
		return Label{}, false
	}
	if _, ok := poundFactors[fields[1]]; !ok {
		return Label{}, false
	}
	return Label{Value: value, Unit: fields[1]}, true
}

// EstimatePrice scales basePrice from baseLabel to targetLabel. The second
// return is false when either label cannot be read, which callers treat as
// "no suggestion".
func EstimatePrice(basePrice float64, baseLabel string, targetLabel string) (float64, bool) {
	from, ok := ParseLabel(baseLabel)
	if !ok {
		return 0, false
	}
	to, ok := ParseLabel(targetLabel)
	if !ok {
		return 0, false
	}

	basePounds := from.Value.Mul(poundFactors[from.Unit])
	if basePounds.IsZero() {
		return 0, false
	}
	perPound := decimal.NewFromFloat(basePrice).Div(basePounds)
	estimate := perPound.Mul(to.Value).Mul(poundFactors[to.Unit]).Round(0)
	return estimate.InexactFloat64(), true
}

func parseQuantity(raw string) (decimal.Decimal, bool) {
	if num, den, isFraction := strings.Cut(raw, "/"); isFraction {
		n, err := decimal.NewFromString(num)
		if err != nil {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(den)
		if err != nil || d.IsZero() {
			return decimal.Zero, false
		}
		return n.Div(d), true
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
