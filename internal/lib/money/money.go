// Package money converts between decimal strings used by external APIs and
// minor currency units.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseMinor parses "123.45" into 12345. More than two fraction digits are rejected.
func ParseMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	for len(frac) < 2 {
		frac += "0"
	}

	if whole == "" {
		whole = "0"
	}

	v, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if neg {
		v = -v
	}

	return v, nil
}

// FormatMinor renders minor units as a two-digit decimal string.
func FormatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
