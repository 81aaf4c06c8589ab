package models

import (
	"github.com/shopspring/decimal"

	dErrors "treasury/pkg/domain-errors"
)

// Amount is a token quantity in the asset's smallest unit. Backed by an
// arbitrary precision decimal so the full i128 range of the settlement layer
// fits; JSON encodes it as a string.
type Amount struct {
	decimal.Decimal
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// NewAmount builds an amount from an integer.
func NewAmount(v int64) Amount {
	return Amount{decimal.NewFromInt(v)}
}

// ParseAmount parses a base-10 string amount.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, dErrors.Wrap(err, dErrors.CodeInvalidAmount, "amount must be a number")
	}
	return Amount{d}, nil
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{a.Decimal.Sub(b.Decimal)}
}

// Exceeds reports whether a > b.
func (a Amount) Exceeds(b Amount) bool {
	return a.Decimal.GreaterThan(b.Decimal)
}

// IsTransferable reports whether a is a positive whole number of base units.
func (a Amount) IsTransferable() bool {
	return a.IsPositive() && a.IsInteger()
}

// ValidateTransferable returns InvalidAmount unless a can be moved.
func (a Amount) ValidateTransferable() error {
	if !a.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be greater than zero")
	}
	if !a.IsInteger() {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be a whole number of base units")
	}
	return nil
}

// Equal compares by value, ignoring representation.
func (a Amount) Equal(b Amount) bool {
	return a.Decimal.Equal(b.Decimal)
}
