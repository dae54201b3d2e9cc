package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
)

type PromoCodeRepo struct {
	DB DBTX
}

const createPromoCode = `-- name: CreatePromoCode
INSERT INTO promo_code (id, user_id, value)
VALUES ($1, $2, $3)
RETURNING id, created_at, user_id, value
`

func (r *PromoCodeRepo) CreatePromoCode(ctx context.Context, userID uuid.UUID, value string) (models.PromoCode, error) {
	rows, _ := r.DB.Query(ctx, createPromoCode, uuid.New(), userID, value)
	code, err := pgx.CollectOneRow(rows, rowToPromoCode)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return code, apperrors.ErrPromoCodeValueTaken
		}
		return code, fmt.Errorf("db error: %w", err)
	}

	return code, nil
}

const getPromoCodeByUser = `-- name: GetByUser
SELECT id, created_at, user_id, value FROM promo_code
WHERE user_id = $1
`

func (r *PromoCodeRepo) GetByUser(ctx context.Context, userID uuid.UUID) (models.PromoCode, error) {
	rows, _ := r.DB.Query(ctx, getPromoCodeByUser, userID)
	code, err := pgx.CollectOneRow(rows, rowToPromoCode)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return code, apperrors.ErrPromoCodeNotFound
	}

	return code, err
}

const getPromoCodeByValue = `-- name: GetByValue
SELECT id, created_at, user_id, value FROM promo_code
WHERE value = $1
`

func (r *PromoCodeRepo) GetByValue(ctx context.Context, value string) (models.PromoCode, error) {
	rows, _ := r.DB.Query(ctx, getPromoCodeByValue, value)
	code, err := pgx.CollectOneRow(rows, rowToPromoCode)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return code, apperrors.ErrPromoCodeNotFound
	}

	return code, err
}

const createBenefit = `-- name: CreateBenefit
INSERT INTO promo_code_benefit (id, promo_code_id, consumer_id, transaction_id)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, promo_code_id, consumer_id, transaction_id, used_by_consumer, used_by_owner
`

func (r *PromoCodeRepo) CreateBenefit(ctx context.Context, promoCodeID uuid.UUID, consumerID uuid.UUID, transactionID *uuid.UUID) (models.PromoCodeBenefit, error) {
	rows, _ := r.DB.Query(ctx, createBenefit, uuid.New(), promoCodeID, consumerID, transactionID)
	benefit, err := pgx.CollectOneRow(rows, rowToBenefit)

	if err != nil {
		return benefit, fmt.Errorf("db error: %w", err)
	}

	return benefit, nil
}

// Locked so two concurrent consumers can't grant the same benefit twice
const oldestOwnerUnused = `-- name: OldestOwnerUnused
SELECT id, created_at, promo_code_id, consumer_id, transaction_id, used_by_consumer, used_by_owner
FROM promo_code_benefit
WHERE promo_code_id = $1 AND NOT used_by_owner
ORDER BY created_at
LIMIT 1
FOR UPDATE
`

func (r *PromoCodeRepo) OldestOwnerUnused(ctx context.Context, promoCodeID uuid.UUID) (models.PromoCodeBenefit, error) {
	rows, _ := r.DB.Query(ctx, oldestOwnerUnused, promoCodeID)
	benefit, err := pgx.CollectOneRow(rows, rowToBenefit)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return benefit, apperrors.ErrNoUnusedBenefit
	}

	return benefit, err
}

const markOwnerUsed = `-- name: MarkOwnerUsed
UPDATE promo_code_benefit
SET used_by_owner = true
WHERE id = $1
`

func (r *PromoCodeRepo) MarkOwnerUsed(ctx context.Context, benefitID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, markOwnerUsed, benefitID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const markConsumerUsed = `-- name: MarkConsumerUsed
UPDATE promo_code_benefit
SET used_by_consumer = true
WHERE id = $1
`

func (r *PromoCodeRepo) MarkConsumerUsed(ctx context.Context, benefitID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, markConsumerUsed, benefitID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func rowToPromoCode(row pgx.CollectableRow) (models.PromoCode, error) {
	var c models.PromoCode
	err := row.Scan(&c.ID, &c.CreatedAt, &c.UserID, &c.Value)
	return c, err
}

func rowToBenefit(row pgx.CollectableRow) (models.PromoCodeBenefit, error) {
	var b models.PromoCodeBenefit
	err := row.Scan(&b.ID, &b.CreatedAt, &b.PromoCodeID, &b.ConsumerID, &b.TransactionID, &b.UsedByConsumer, &b.UsedByOwner)
	return b, err
}
