package phone

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalid = errors.New("invalid phone number")

// Normalize returns the E.164 form of raw, reading national numbers in region.
func Normalize(raw string, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	num, err := libphonenumber.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalid
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
