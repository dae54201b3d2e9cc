package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
)

type LedgerRepo struct {
	DB DBTX
}

const entryColumns = `id, invoice_number, created_at, user_id, purpose, type,
amount, currency, original_amount, original_currency,
object_kind, object_id, object_identifier, parent_id, cashback_to_id,
completed, completed_at, is_deleted, deleted_at,
discounted_amount, discounted_amount_currency, extra`

const createEntry = `-- name: CreateEntry
INSERT INTO transaction (
	id, user_id, purpose, type, amount, currency,
	original_amount, original_currency,
	object_kind, object_id, object_identifier,
	parent_id, cashback_to_id, completed, completed_at, extra
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING ` + entryColumns

func (r *LedgerRepo) CreateEntry(ctx context.Context, arg repository.CreateEntryParams) (models.Transaction, error) {
	extra := arg.Extra
	if extra == nil {
		extra = map[string]any{}
	}

	var objectID *uuid.UUID
	if arg.Object.ObjectID != uuid.Nil {
		objectID = &arg.Object.ObjectID
	}

	rows, _ := r.DB.Query(ctx, createEntry,
		uuid.New(), arg.UserID, arg.Purpose, arg.Type, arg.Amount, arg.Currency,
		arg.OriginalAmount, arg.OriginalCurrency,
		arg.Object.Kind, objectID, arg.Object.Identifier,
		arg.ParentID, arg.CashbackToID, arg.Completed, arg.CompletedAt, extra,
	)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	if err != nil {
		return entry, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

const getEntry = `-- name: GetEntry
SELECT ` + entryColumns + ` FROM transaction
WHERE id = $1
`

func (r *LedgerRepo) GetEntry(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getEntry, id)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return entry, apperrors.ErrTransactionNotFound
	}

	return entry, err
}

// Row level lock serializing concurrent completion attempts on the same
// entries. This is what makes webhook retries racing a user confirmation safe.
const lockEntries = `-- name: LockEntries
SELECT ` + entryColumns + ` FROM transaction
WHERE id = ANY($1) AND NOT is_deleted
ORDER BY created_at
FOR UPDATE
`

func (r *LedgerRepo) LockEntries(ctx context.Context, ids []uuid.UUID) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, lockEntries, ids)
	return pgx.CollectRows(rows, rowToEntry)
}

const completeEntry = `-- name: CompleteEntry
UPDATE transaction
SET completed = true,
    completed_at = $2,
    type = $3,
    discounted_amount = $4,
    discounted_amount_currency = $5
WHERE id = $1
RETURNING ` + entryColumns

func (r *LedgerRepo) CompleteEntry(ctx context.Context, id uuid.UUID, at time.Time, instrument models.Instrument, discounted decimal.Decimal, discountedCurrency string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, completeEntry, id, at, instrument, discounted, discountedCurrency)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return entry, apperrors.ErrTransactionNotFound
	}

	return entry, err
}

const uncompleteEntry = `-- name: UncompleteEntry
UPDATE transaction
SET completed = false, completed_at = NULL
WHERE id = $1
RETURNING ` + entryColumns

func (r *LedgerRepo) UncompleteEntry(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, uncompleteEntry, id)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return entry, apperrors.ErrTransactionNotFound
	}

	return entry, err
}

const updateDiscountedAmount = `-- name: UpdateDiscountedAmount
UPDATE transaction
SET discounted_amount = $2, discounted_amount_currency = $3
WHERE id = $1
`

func (r *LedgerRepo) UpdateDiscountedAmount(ctx context.Context, id uuid.UUID, discounted decimal.Decimal, discountedCurrency string) error {
	_, err := r.DB.Exec(ctx, updateDiscountedAmount, id, discounted, discountedCurrency)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const cashbackChildren = `-- name: CashbackChildren
SELECT ` + entryColumns + ` FROM transaction
WHERE cashback_to_id = $1 AND NOT is_deleted
ORDER BY created_at
`

func (r *LedgerRepo) CashbackChildren(ctx context.Context, entryID uuid.UUID) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, cashbackChildren, entryID)
	return pgx.CollectRows(rows, rowToEntry)
}

// Completed flag intentionally ignored: pending cashbacks already reserve
// their share of the parent amount.
const cashbackChildrenSum = `-- name: CashbackChildrenSum
SELECT COALESCE(SUM(amount), 0) FROM transaction
WHERE cashback_to_id = $1 AND NOT is_deleted
`

func (r *LedgerRepo) CashbackChildrenSum(ctx context.Context, entryID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, cashbackChildrenSum, entryID).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}

	return sum, nil
}

// Depth capped so corrupted data can't loop the walk
const cashbackAncestors = `-- name: CashbackAncestors
WITH RECURSIVE chain (id, cashback_to_id, depth) AS (
	SELECT id, cashback_to_id, 0 FROM transaction WHERE id = $1
	UNION ALL
	SELECT t.id, t.cashback_to_id, c.depth + 1 FROM transaction t
	JOIN chain c ON t.id = c.cashback_to_id
	WHERE c.depth < 64
)
SELECT id FROM chain WHERE depth > 0
`

func (r *LedgerRepo) CashbackAncestors(ctx context.Context, entryID uuid.UUID) ([]uuid.UUID, error) {
	rows, _ := r.DB.Query(ctx, cashbackAncestors, entryID)
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
}

const childrenOfParent = `-- name: ChildrenOfParent
SELECT ` + entryColumns + ` FROM transaction
WHERE parent_id = $1
ORDER BY created_at
`

func (r *LedgerRepo) ChildrenOfParent(ctx context.Context, parentID uuid.UUID) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, childrenOfParent, parentID)
	return pgx.CollectRows(rows, rowToEntry)
}

const softDeleteEntry = `-- name: SoftDeleteEntry
UPDATE transaction
SET is_deleted = true, deleted_at = $2
WHERE id = $1
`

func (r *LedgerRepo) SoftDeleteEntry(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.DB.Exec(ctx, softDeleteEntry, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const detachParent = `-- name: DetachParent
UPDATE transaction
SET parent_id = NULL
WHERE id = $1
`

func (r *LedgerRepo) DetachParent(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, detachParent, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const pendingForObject = `-- name: PendingForObject
SELECT ` + entryColumns + ` FROM transaction
WHERE object_kind = $1 AND object_id = $2 AND NOT completed AND NOT is_deleted
ORDER BY created_at
`

func (r *LedgerRepo) PendingForObject(ctx context.Context, ref models.PayableRef) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, pendingForObject, ref.Kind, ref.ObjectID)
	return pgx.CollectRows(rows, rowToEntry)
}

const completedPartialsForObject = `-- name: CompletedPartialsForObject
SELECT ` + entryColumns + ` FROM transaction
WHERE object_kind = $1 AND object_id = $2
  AND completed AND NOT is_deleted
  AND (extra ->> 'partial')::boolean IS TRUE
ORDER BY created_at
`

func (r *LedgerRepo) CompletedPartialsForObject(ctx context.Context, ref models.PayableRef) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, completedPartialsForObject, ref.Kind, ref.ObjectID)
	return pgx.CollectRows(rows, rowToEntry)
}

const lastCompletedForObject = `-- name: LastCompletedForObject
SELECT ` + entryColumns + ` FROM transaction
WHERE object_kind = $1 AND object_id = $2 AND completed AND NOT is_deleted
ORDER BY completed_at DESC
LIMIT 1
`

func (r *LedgerRepo) LastCompletedForObject(ctx context.Context, ref models.PayableRef) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, lastCompletedForObject, ref.Kind, ref.ObjectID)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return entry, apperrors.ErrTransactionNotFound
	}

	return entry, err
}

func rowToEntry(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	var objectID *uuid.UUID

	err := row.Scan(
		&t.ID, &t.InvoiceNumber, &t.CreatedAt, &t.UserID, &t.Purpose, &t.Type,
		&t.Amount, &t.Currency, &t.OriginalAmount, &t.OriginalCurrency,
		&t.ObjectKind, &objectID, &t.ObjectIdentifier, &t.ParentID, &t.CashbackToID,
		&t.Completed, &t.CompletedAt, &t.IsDeleted, &t.DeletedAt,
		&t.DiscountedAmount, &t.DiscountedAmountCurrency, &t.Extra,
	)
	if objectID != nil {
		t.ObjectID = *objectID
	}

	return t, err
}
