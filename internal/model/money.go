package model

import (
	"fmt"
	"math"
	"strconv"
)

// All internal money values are int64 minor currency units (kobo for NGN).
// Conversion from decimal strings happens once, at the request boundary;
// nothing downstream does float arithmetic on prices.

// ParseCents converts a decimal string in major units to minor units.
// Used when ingesting prices from request payloads ("450.00" → 45000).
// Returns 0 for empty or unparseable input - callers that must distinguish
// "free" from "garbage" should validate the string before converting.
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	// Round, don't truncate: "99.999" is a data bug but should not
	// silently lose a unit.
	return int64(math.Round(f * 100))
}

// FormatMinor renders a minor-unit amount as a decimal string in major
// units ("45000" → "450.00"). Used for log output and email payloads.
func FormatMinor(v int64) string {
	neg := ""
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}
