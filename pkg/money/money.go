// Package money converts parsed amounts into integer minor units with an
// ISO-4217 currency, the representation used for stored expenses.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	JPY = "JPY" // no minor units
)

// ErrAmountOutOfRange is returned when an amount has no int64 minor-unit
// representation.
var ErrAmountOutOfRange = errors.New("amount out of range")

var (
	minMinor = decimal.NewFromInt(math.MinInt64)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// Money is an amount in minor units with its currency.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, currencyCode)}
}

// IsKnownCurrency reports whether code is an ISO-4217 code go-money knows.
func IsKnownCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// NewFromFloat converts a float amount using decimal rounding (half away from
// zero) to the currency's minor unit. Unknown currencies fall back to USD.
func NewFromFloat(amount float64, currencyCode string) (*Money, error) {
	if math.IsInf(amount, 0) || math.IsNaN(amount) {
		return nil, fmt.Errorf("%w: %v", ErrAmountOutOfRange, amount)
	}
	return NewFromDecimal(decimal.NewFromFloat(amount), currencyCode)
}

// NewFromDecimal converts a decimal amount to minor units. Amounts whose
// rounded minor units do not fit in an int64 yield ErrAmountOutOfRange.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) (*Money, error) {
	code := strings.ToUpper(currencyCode)
	currency := money.GetCurrency(code)
	if currency == nil {
		code = USD
		currency = money.GetCurrency(USD)
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	minor := amount.Mul(multiplier).Round(0)
	if minor.LessThan(minMinor) || minor.GreaterThan(maxMinor) {
		return nil, fmt.Errorf("%w: %s %s", ErrAmountOutOfRange, amount.String(), code)
	}

	return New(minor.IntPart(), code), nil
}

// Amount returns the amount in minor units.
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsPositive returns true if the amount is greater than zero
func (m *Money) IsPositive() bool {
	return m != nil && m.m != nil && m.m.IsPositive()
}

// ToDecimal converts back to major units.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	d := decimal.NewFromInt(m.m.Amount())
	return d.Div(decimal.New(1, int32(m.m.Currency().Fraction)))
}

// ToFloat64 converts to float64 (for display only).
func (m *Money) ToFloat64() float64 {
	return m.ToDecimal().InexactFloat64()
}

// Display returns a formatted string (e.g., "$1,234.56").
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// String returns the amount as a decimal string with the currency's precision.
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}

func (m *Money) MarshalJSON() ([]byte, error) {
	if m == nil || m.m == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(map[string]any{
		"amount":   m.Amount(),
		"currency": m.Currency(),
		"display":  m.Display(),
	})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if !IsKnownCurrency(v.Currency) {
		return fmt.Errorf("unknown currency %q", v.Currency)
	}
	m.m = money.New(v.Amount, strings.ToUpper(v.Currency))
	return nil
}
