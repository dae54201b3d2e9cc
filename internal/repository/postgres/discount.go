package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
)

type DiscountRepo struct {
	DB DBTX
}

const createDiscount = `-- name: CreateDiscount
INSERT INTO discount (id, object_kind, object_id, percentage, reason, extra)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, object_kind, object_id, percentage, reason, extra
`

func (r *DiscountRepo) CreateDiscount(ctx context.Context, ref models.PayableRef, spec repository.DiscountSpec) (models.Discount, error) {
	reason := spec.Reason
	if reason == "" {
		reason = models.DiscountReasonSimple
	}
	extra := spec.Extra
	if extra == nil {
		extra = map[string]any{}
	}

	rows, _ := r.DB.Query(ctx, createDiscount, uuid.New(), ref.Kind, ref.ObjectID, spec.Percentage, reason, extra)
	discount, err := pgx.CollectOneRow(rows, rowToDiscount)

	if err != nil {
		return discount, fmt.Errorf("db error: %w", err)
	}

	return discount, nil
}

// Insertion order is the application order, never sort by percentage
const listDiscountsForObject = `-- name: ListForObject
SELECT id, created_at, object_kind, object_id, percentage, reason, extra FROM discount
WHERE object_kind = $1 AND object_id = $2
ORDER BY created_at, id
`

func (r *DiscountRepo) ListForObject(ctx context.Context, ref models.PayableRef) ([]models.Discount, error) {
	rows, _ := r.DB.Query(ctx, listDiscountsForObject, ref.Kind, ref.ObjectID)
	return pgx.CollectRows(rows, rowToDiscount)
}

const deleteDiscountsForObject = `-- name: DeleteForObject
DELETE FROM discount
WHERE object_kind = $1 AND object_id = $2
`

func (r *DiscountRepo) DeleteForObject(ctx context.Context, ref models.PayableRef) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteDiscountsForObject, ref.Kind, ref.ObjectID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToDiscount(row pgx.CollectableRow) (models.Discount, error) {
	var d models.Discount
	err := row.Scan(&d.ID, &d.CreatedAt, &d.ObjectKind, &d.ObjectID, &d.Percentage, &d.Reason, &d.Extra)
	return d, err
}
