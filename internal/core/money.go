// Package core provides money parsing and handling utilities.
//
// Amounts are stored as integer cents. Parsing accepts the decimal strings
// drivers type into forms; formatting renders 2-decimal USD-style values
// with thousands separators.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseCents converts a decimal string to cents with half-up rounding on the
// third decimal place. Zero is a valid result: callers that treat an empty or
// zero amount as "delete the row" rely on that. Negative values and malformed
// input return ErrInvalidAmount.
//
// Examples:
//
//	ParseCents("1200")    -> 120000, nil
//	ParseCents("12.34")   -> 1234, nil
//	ParseCents("12.346")  -> 1235, nil (rounds up)
//	ParseCents("")        -> 0, nil
//	ParseCents("-5")      -> 0, ErrInvalidAmount
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits, half-up rounding on the third
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// ParsePositiveCents is ParseCents restricted to amounts greater than zero.
// Used everywhere a form requires a real amount (loads, fixed deductions,
// expenses).
func ParsePositiveCents(s string) (int64, error) {
	cents, err := ParseCents(s)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParsePercent parses a company-deduction percentage and rejects values
// outside [0, 100]. An empty string parses to 0.
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, nil
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p != p { // reject NaN
		return 0, ErrInvalidPercent
	}
	if p < 0 || p > 100 {
		return 0, ErrInvalidPercent
	}
	return p, nil
}

// Dollars returns the dollar value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}

// String renders the amount as "1,234.56". Negative amounts keep the sign
// in front of the grouped digits.
func (m Money) String() string {
	return FormatUSD(m.Cents)
}

// FormatUSD formats cents as a 2-decimal value with thousands separators.
func FormatUSD(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	b.WriteByte('.')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}
