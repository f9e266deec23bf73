// Package types provides common types used across xchpay.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MojoPerXCH is the number of base units (mojos) in one XCH.
const MojoPerXCH int64 = 1_000_000_000_000

// mojoExp is the decimal exponent of one mojo relative to one XCH.
const mojoExp int32 = -12

// Default currency codes.
const (
	CurrencyXCH  = "xch"  // Chia mainnet
	CurrencyTXCH = "txch" // Chia testnet
)

// Money represents a chain amount in its smallest unit (mojos).
// All arithmetic is integer-only; display units are derived on demand.
//
// Examples:
//   - Mojos(1_000_000_000_000) = 1 XCH
//   - Mojos(250_000_000_000)   = 0.25 XCH
type Money struct {
	Amount   int64  `json:"amount"`   // Base units (mojos)
	Currency string `json:"currency"` // Lowercase chain code: "xch", "txch"
}

// Mojos creates an XCH Money value from base units.
func Mojos(n int64) Money { return Money{Amount: n, Currency: CurrencyXCH} }

// XCH creates a Money value from a whole number of XCH.
func XCH(whole int64) Money { return Mojos(whole * MojoPerXCH) }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// FromDecimal converts a display-unit amount (e.g. 1.5 XCH) into base units.
// Fractions below one mojo are rejected.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	base := d.Shift(-mojoExp)
	if !base.IsInteger() {
		return Money{}, fmt.Errorf("money: %s has more than 12 decimal places", d.String())
	}
	if base.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Money{}, fmt.Errorf("money: %s is out of range", d.String())
	}
	return Money{Amount: base.IntPart(), Currency: strings.ToLower(currency)}, nil
}

// ParseXCH parses a display-unit string such as "10" or "0.25" into XCH.
func ParseXCH(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d, CurrencyXCH)
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// Covers reports whether m is at least other, i.e. a payment of m settles a
// debt of other. Panics if currencies don't match.
func (m Money) Covers(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount >= other.Amount
}

// Formatting methods

// Decimal returns the amount in display units (XCH).
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, mojoExp)
}

// FormatMajor returns the display-unit string without the currency code,
// trimmed of trailing zeros: "1.5" for Mojos(1_500_000_000_000).
func (m Money) FormatMajor() string {
	return m.Decimal().String()
}

// String returns a human-readable string such as "1.5 XCH".
func (m Money) String() string {
	return m.FormatMajor() + " " + strings.ToUpper(m.Currency)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.Currency = strings.ToLower(raw.Currency)
	return nil
}

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// Sum calculates the sum of multiple Money values. All must have the same currency.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
