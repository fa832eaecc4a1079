package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a BRL amount stored as BIGINT centavos (10^-2) to avoid
// floating point errors. All wallet balances and transaction amounts use this
// representation in the database.
type Money struct {
	Centavos int64
}

// NewMoney creates a Money instance from centavos.
func NewMoney(centavos int64) Money {
	return Money{Centavos: centavos}
}

// ToDecimal converts the int64 centavos to a shopspring/decimal.Decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Centavos).Div(decimal.NewFromInt(100))
}

// FromDecimal converts a decimal.Decimal to int64 centavos, truncating
// anything below centavo precision.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}

// ParseAmount parses a decimal string ("100.00") into centavos.
// Rejects non-positive values and sub-centavo precision.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("amount %q has sub-centavo precision", s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %q", s)
	}
	return FromDecimal(d), nil
}

// ParseLimit parses a decimal string into centavos, allowing zero. A zero
// auto-approval limit sends every withdrawal to manual review.
func ParseLimit(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("amount %q has sub-centavo precision", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative, got %q", s)
	}
	return FromDecimal(d), nil
}

// String returns the fixed two-decimal representation, e.g. "100.00".
func (m Money) String() string {
	return m.ToDecimal().StringFixed(2)
}
