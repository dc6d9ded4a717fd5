// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents, decimals and display strings.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPrefix is prepended to every formatted amount.
const CurrencyPrefix = "Rs. "

var hundred = decimal.NewFromInt(100)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("0") -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	cents, err := parseCents(s)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseAmount is like ParseDecimalToCents but accepts zero. Budget limits
// and spent totals may legitimately be zero.
func ParseAmount(s string) (Money, error) {
	cents, err := parseCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// ParseSignedAmount is ParseAmount with an optional leading minus, for
// account balances that may start in debt.
func ParseSignedAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	m, err := ParseAmount(strings.TrimPrefix(s, "-"))
	if err != nil {
		return Money{}, err
	}
	if neg {
		m.Cents = -m.Cents
	}
	return m, nil
}

// maxAmount keeps amount*100 inside int64.
var maxAmount = decimal.NewFromInt(math.MaxInt64/100 - 1)

// parseCents accepts ASCII digits with at most one '.' or ',' separator.
// Signs and exponents are rejected before decimal parsing.
func parseCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	digits, seps := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			seps++
		default:
			return 0, ErrInvalidAmount
		}
	}
	if digits == 0 || seps > 1 {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")

	d, err := decimal.NewFromString(s)
	if err != nil || d.GreaterThan(maxAmount) {
		return 0, ErrInvalidAmount
	}
	return MoneyFromDecimal(d).Cents, nil
}

// MoneyFromDecimal converts a decimal amount to cents, rounding half away
// from zero.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Mul(hundred).Round(0).IntPart()}
}

// Decimal returns the amount as a two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String implements fmt.Stringer using the plain two-decimal representation.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Cents < 0
}

// FormatMoney formats cents for display (e.g., "Rs. 1234.50").
func FormatMoney(m Money) string {
	if m.Cents < 0 {
		return "-" + CurrencyPrefix + Money{Cents: -m.Cents}.String()
	}
	return CurrencyPrefix + m.String()
}
