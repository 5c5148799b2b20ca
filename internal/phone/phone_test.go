package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNationalNumber(t *testing.T) {
	got, err := Normalize(" 9876543210 ", "in")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", got)
}

func TestNormalizeKeepsInternationalNumber(t *testing.T) {
	got, err := Normalize("+91 98765 43210", "US")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", got)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "12"} {
		_, err := Normalize(raw, "IN")
		assert.ErrorIs(t, err, ErrInvalid, "raw %q", raw)
	}
}
