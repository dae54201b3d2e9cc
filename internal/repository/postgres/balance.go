package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
)

type BalanceRepo struct {
	DB DBTX
}

// Create balance lazily on first access
// If the (user, currency) pair exists already return it as is
const getOrCreateBalance = `-- name: GetOrCreateBalance
WITH insert_balance AS (
	INSERT INTO balance (id, user_id, currency, amount)
	VALUES ($1, $2, $3, 0)
	ON CONFLICT (user_id, currency) DO NOTHING
	RETURNING id, user_id, currency, amount, updated_at
)
SELECT * FROM insert_balance
UNION
SELECT id, user_id, currency, amount, updated_at FROM balance
WHERE user_id = $2 AND currency = $3
`

func (r *BalanceRepo) GetOrCreateBalance(ctx context.Context, userID uuid.UUID, currency string) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, getOrCreateBalance, uuid.New(), userID, currency)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	// Two first-accesses can race: the loser's insert hits the conflict
	// against a row its statement snapshot does not see yet, so the CTE
	// returns nothing. A fresh statement sees the winner's row.
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetBalance(ctx, userID, currency)
	}
	if err != nil {
		return balance, fmt.Errorf("db error: %w", err)
	}

	return balance, nil
}

const getBalance = `-- name: GetBalance
SELECT id, user_id, currency, amount, updated_at FROM balance
WHERE user_id = $1 AND currency = $2
`

func (r *BalanceRepo) GetBalance(ctx context.Context, userID uuid.UUID, currency string) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, getBalance, userID, currency)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return balance, apperrors.ErrBalanceNotFound
	}

	return balance, err
}

// Atomic increment evaluated by the database, safe under concurrent calls
// without an explicit lock. No floor: the amount may go negative.
const addToBalance = `-- name: AddToBalance
UPDATE balance
SET amount = amount + $3, updated_at = now()
WHERE user_id = $1 AND currency = $2
RETURNING id, user_id, currency, amount, updated_at
`

func (r *BalanceRepo) AddToBalance(ctx context.Context, userID uuid.UUID, currency string, delta decimal.Decimal) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, addToBalance, userID, currency, delta)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return balance, apperrors.ErrBalanceNotFound
	}

	return balance, err
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.ID, &b.UserID, &b.Currency, &b.Amount, &b.UpdatedAt)
	return b, err
}
