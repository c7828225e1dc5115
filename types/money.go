// Package types provides common types used across Entitle.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Money is a catalog price in the smallest currency unit.
// Prices are integer-only; USD(99) is $0.99.
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents, pence, etc)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "gbp"
}

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Currency: strings.ToLower(currency)} }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// Major returns the amount in major units, e.g. 0.99 for USD(99).
// Only intended for display; never do arithmetic on the result.
func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

// String renders the price with its currency symbol: "$0.99", "€3.99".
func (m Money) String() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, symbol(m.Currency), amount/100, amount%100)
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

func symbol(currency string) string {
	switch strings.ToLower(currency) {
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "gbp":
		return "£"
	default:
		return strings.ToUpper(currency) + " "
	}
}
