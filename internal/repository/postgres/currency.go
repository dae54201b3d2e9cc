package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
)

type CurrencyRepo struct {
	DB DBTX
}

const saveCurrency = `-- name: SaveCurrency
INSERT INTO currency (code, numeric_code, symbol, rate)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE
SET numeric_code = EXCLUDED.numeric_code,
    symbol = EXCLUDED.symbol,
    rate = EXCLUDED.rate
`

func (r *CurrencyRepo) SaveCurrency(ctx context.Context, c models.Currency) error {
	_, err := r.DB.Exec(ctx, saveCurrency, c.Code, c.NumericCode, c.Symbol, c.Rate)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const getCurrency = `-- name: GetCurrency
SELECT code, numeric_code, symbol, rate FROM currency
WHERE code = $1
`

func (r *CurrencyRepo) GetCurrency(ctx context.Context, code string) (models.Currency, error) {
	rows, _ := r.DB.Query(ctx, getCurrency, code)
	currency, err := pgx.CollectOneRow(rows, rowToCurrency)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return currency, apperrors.ErrCurrencyNotFound
	}

	return currency, err
}

const listCurrencies = `-- name: ListCurrencies
SELECT code, numeric_code, symbol, rate FROM currency
ORDER BY code
`

func (r *CurrencyRepo) ListCurrencies(ctx context.Context) ([]models.Currency, error) {
	rows, _ := r.DB.Query(ctx, listCurrencies)
	return pgx.CollectRows(rows, rowToCurrency)
}

const baseCurrency = `-- name: BaseCurrency
SELECT code FROM currency
WHERE rate = 1
`

func (r *CurrencyRepo) BaseCurrency(ctx context.Context) (string, error) {
	var code string
	err := r.DB.QueryRow(ctx, baseCurrency).Scan(&code)

	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", apperrors.ErrNoBaseCurrency
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}

func rowToCurrency(row pgx.CollectableRow) (models.Currency, error) {
	var c models.Currency
	err := row.Scan(&c.Code, &c.NumericCode, &c.Symbol, &c.Rate)
	return c, err
}
