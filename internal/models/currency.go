package models

import (
	"github.com/shopspring/decimal"
)

type Currency struct {
	Code        string // unique, e.g. "USD"
	NumericCode int    // numeric ISO 4217 code
	Symbol      string
	Rate        decimal.Decimal // rate relative to the base currency
}

// IsBase reports whether this currency is the base one.
// Exactly one currency is expected to have rate 1 at any time.
func (c Currency) IsBase() bool {
	return c.Rate.Equal(decimal.NewFromInt(1))
}
