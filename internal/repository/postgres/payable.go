package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
)

type PayableRepo struct {
	DB DBTX
}

const createPayable = `-- name: CreatePayable
INSERT INTO payable (id, kind, identifier, user_id, status, status_updated_at, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, kind, identifier, user_id, status, status_updated_at, extra
`

func (r *PayableRepo) CreatePayable(ctx context.Context, p models.Payable) (models.Payable, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.StatusUpdatedAt.IsZero() {
		p.StatusUpdatedAt = time.Now()
	}
	if p.Extra == nil {
		p.Extra = map[string]any{}
	}

	rows, _ := r.DB.Query(ctx, createPayable,
		p.ID, p.Kind, p.Identifier, p.UserID, p.Status, p.StatusUpdatedAt, p.Extra)
	created, err := pgx.CollectOneRow(rows, rowToPayable)

	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getPayable = `-- name: GetPayable
SELECT id, kind, identifier, user_id, status, status_updated_at, extra FROM payable
WHERE kind = $1 AND id = $2
`

func (r *PayableRepo) GetPayable(ctx context.Context, kind models.PayableKind, id uuid.UUID) (models.Payable, error) {
	rows, _ := r.DB.Query(ctx, getPayable, kind, id)
	payable, err := pgx.CollectOneRow(rows, rowToPayable)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return payable, apperrors.ErrPayableNotFound
	}

	return payable, err
}

const lockPayable = getPayable + `FOR UPDATE
`

func (r *PayableRepo) LockPayable(ctx context.Context, kind models.PayableKind, id uuid.UUID) (models.Payable, error) {
	rows, _ := r.DB.Query(ctx, lockPayable, kind, id)
	payable, err := pgx.CollectOneRow(rows, rowToPayable)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return payable, apperrors.ErrPayableNotFound
	}

	return payable, err
}

const updatePayableStatus = `-- name: UpdateStatus
UPDATE payable
SET status = $2, status_updated_at = $3
WHERE id = $1
RETURNING id, kind, identifier, user_id, status, status_updated_at, extra
`

func (r *PayableRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) (models.Payable, error) {
	rows, _ := r.DB.Query(ctx, updatePayableStatus, id, status, at)
	payable, err := pgx.CollectOneRow(rows, rowToPayable)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return payable, apperrors.ErrPayableNotFound
	}

	return payable, err
}

const updatePayableExtra = `-- name: UpdateExtra
UPDATE payable
SET extra = $2
WHERE id = $1
`

func (r *PayableRepo) UpdateExtra(ctx context.Context, id uuid.UUID, extra map[string]any) error {
	_, err := r.DB.Exec(ctx, updatePayableExtra, id, extra)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func rowToPayable(row pgx.CollectableRow) (models.Payable, error) {
	var p models.Payable
	err := row.Scan(&p.ID, &p.Kind, &p.Identifier, &p.UserID, &p.Status, &p.StatusUpdatedAt, &p.Extra)
	return p, err
}
