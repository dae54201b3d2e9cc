package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
)

type StatusRepo struct {
	DB DBTX
}

const listStatuses = `-- name: ListStatuses
SELECT id, kind, codename, name, sort_order, extra FROM status
ORDER BY kind, sort_order
`

func (r *StatusRepo) ListStatuses(ctx context.Context) ([]models.Status, error) {
	rows, _ := r.DB.Query(ctx, listStatuses)
	return pgx.CollectRows(rows, rowToStatus)
}

const getStatus = `-- name: GetStatus
SELECT id, kind, codename, name, sort_order, extra FROM status
WHERE kind = $1 AND codename = $2
`

func (r *StatusRepo) GetStatus(ctx context.Context, kind models.PayableKind, codename string) (models.Status, error) {
	rows, _ := r.DB.Query(ctx, getStatus, kind, codename)
	status, err := pgx.CollectOneRow(rows, rowToStatus)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return status, apperrors.ErrStatusNotFound
	}

	return status, err
}

const createStatusEvent = `-- name: CreateEvent
INSERT INTO status_event (id, object_kind, object_id, from_status, to_status, message)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, object_kind, object_id, from_status, to_status, message
`

func (r *StatusRepo) CreateEvent(ctx context.Context, event models.StatusEvent) (models.StatusEvent, error) {
	rows, _ := r.DB.Query(ctx, createStatusEvent,
		uuid.New(), event.ObjectKind, event.ObjectID, event.FromStatus, event.ToStatus, event.Message)
	created, err := pgx.CollectOneRow(rows, rowToStatusEvent)

	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func rowToStatus(row pgx.CollectableRow) (models.Status, error) {
	var s models.Status
	err := row.Scan(&s.ID, &s.Kind, &s.Codename, &s.Name, &s.SortOrder, &s.Extra)
	return s, err
}

func rowToStatusEvent(row pgx.CollectableRow) (models.StatusEvent, error) {
	var e models.StatusEvent
	err := row.Scan(&e.ID, &e.CreatedAt, &e.ObjectKind, &e.ObjectID, &e.FromStatus, &e.ToStatus, &e.Message)
	return e, err
}
