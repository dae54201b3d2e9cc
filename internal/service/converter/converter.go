// Package converter converts amounts between currency codes through the base
// currency, using a fixed rate snapshot. Conversion is deterministic and side
// effect free: build a Snapshot once per request or task and reuse it.
package converter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
)

const defaultRounding = 2

type Snapshot struct {
	currencies map[string]models.Currency
	base       string // code of the currency with rate 1, empty if none
}

func NewSnapshot(currencies []models.Currency) *Snapshot {
	s := &Snapshot{currencies: make(map[string]models.Currency, len(currencies))}

	for _, c := range currencies {
		s.currencies[c.Code] = c
		if c.IsBase() {
			s.base = c.Code
		}
	}

	return s
}

// Load builds a snapshot from the stored rates.
func Load(ctx context.Context, repo repository.CurrencyRepo) (*Snapshot, error) {
	currencies, err := repo.ListCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't load currencies: %w", err)
	}

	return NewSnapshot(currencies), nil
}

// Base returns the base currency code.
func (s *Snapshot) Base() (string, error) {
	if s.base == "" {
		return "", apperrors.ErrNoBaseCurrency
	}
	return s.base, nil
}

func (s *Snapshot) Has(code string) bool {
	_, ok := s.currencies[code]
	return ok
}

type Option func(*convertOptions)

type convertOptions struct {
	rounding int32
}

// WithRounding overrides the number of decimal places of the final result.
// Intermediate hops are always rounded to 2 places regardless.
func WithRounding(places int32) Option {
	return func(o *convertOptions) { o.rounding = places }
}

// Convert converts value from one currency code to another. A no-op
// conversion still rounds. Unknown codes yield apperrors.ErrCurrencyNotFound
// wrapped with the offending code.
func (s *Snapshot) Convert(value decimal.Decimal, from, to string, opts ...Option) (decimal.Decimal, error) {
	o := convertOptions{rounding: defaultRounding}
	for _, opt := range opts {
		opt(&o)
	}

	return s.convert(value, from, to, o.rounding)
}

// TryConvert is Convert with missing currencies tolerated: it reports
// ok=false instead of an error when either code is unknown.
func (s *Snapshot) TryConvert(value decimal.Decimal, from, to string, opts ...Option) (decimal.Decimal, bool) {
	converted, err := s.Convert(value, from, to, opts...)
	if err != nil {
		return decimal.Decimal{}, false
	}

	return converted, true
}

func (s *Snapshot) convert(value decimal.Decimal, from, to string, rounding int32) (decimal.Decimal, error) {
	if from == to {
		if _, ok := s.currencies[from]; !ok {
			return decimal.Decimal{}, fmt.Errorf("%q: %w", from, apperrors.ErrCurrencyNotFound)
		}
		return value.Round(rounding), nil
	}

	fromCurrency, ok := s.currencies[from]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%q: %w", from, apperrors.ErrCurrencyNotFound)
	}
	toCurrency, ok := s.currencies[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%q: %w", to, apperrors.ErrCurrencyNotFound)
	}

	switch {
	case toCurrency.IsBase():
		return value.Mul(fromCurrency.Rate).Round(rounding), nil
	case fromCurrency.IsBase():
		return value.Div(toCurrency.Rate).Round(rounding), nil
	}

	// Two hops, always through the base, never direct cross rates. The
	// intermediate value is rounded to 2 places first, sub-cent precision
	// is intentionally lost for compatibility with historical amounts.
	if s.base == "" {
		return decimal.Decimal{}, apperrors.ErrNoBaseCurrency
	}

	inBase, err := s.convert(value, from, s.base, defaultRounding)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return s.convert(inBase, s.base, to, rounding)
}
