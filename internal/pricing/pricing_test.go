package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateSameUnitIsIdentity(t *testing.T) {
	got, ok := EstimatePrice(100, "1 Pound", "1 Pound")
	require.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestEstimateRoundTrip(t *testing.T) {
	double, ok := EstimatePrice(100, "1 Pound", "2 Pound")
	require.True(t, ok)
	assert.Equal(t, 200.0, double)

	back, ok := EstimatePrice(double, "2 Pound", "1 Pound")
	require.True(t, ok)
	assert.InDelta(t, 100.0, back, 1)
}

func TestEstimateCrossUnit(t *testing.T) {
	cases := []struct {
		base   float64
		from   string
		to     string
		expect float64
	}{
		{base: 400, from: "1 Pound", to: "500 Gram", expect: 441},
		{base: 880, from: "1 kg", to: "1 lb", expect: 399},
		{base: 100, from: "1/2 Pound", to: "1 Pound", expect: 200},
		{base: 220, from: "1 Liter", to: "500 ml", expect: 110},
		{base: 50, from: "250 g", to: "1/2 Kg", expect: 100},
	}
	for _, tc := range cases {
		got, ok := EstimatePrice(tc.base, tc.from, tc.to)
		require.True(t, ok, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.expect, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestEstimateUnknownUnitHasNoSuggestion(t *testing.T) {
	for _, pair := range [][2]string{
		{"1 Pound", "1 dozen"},
		{"1 box", "1 Pound"},
		{"Pound", "1 Pound"},
		{"0 Pound", "1 Pound"},
		{"1/0 Pound", "1 Pound"},
		{"abc Pound", "1 Pound"},
		{"", ""},
	} {
		_, ok := EstimatePrice(100, pair[0], pair[1])
		assert.False(t, ok, "%q -> %q", pair[0], pair[1])
	}
}

func TestParseLabel(t *testing.T) {
	label, ok := ParseLabel("  3/4   KG ")
	require.True(t, ok)
	assert.Equal(t, "kg", label.Unit)
	assert.Equal(t, "0.75", label.Value.String())
}
