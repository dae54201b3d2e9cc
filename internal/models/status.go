package models

import (
	"time"

	"github.com/google/uuid"
)

// Well known status codenames the engines key side effects off.
const (
	StatusPaid    = "paid"
	StatusDone    = "done"
	StatusDeleted = "deleted"
)

// Status is one row of the data-driven state machine, scoped by payable kind.
// SortOrder defines the default linear chain; Extra may carry a "next"
// codename override and an "is_final" marker.
type Status struct {
	ID        uuid.UUID
	Kind      PayableKind
	Codename  string
	Name      string
	SortOrder int
	Extra     map[string]any
}

// NextOverride returns the explicit next-codename edge, if present.
func (s Status) NextOverride() (string, bool) {
	v, ok := s.Extra["next"].(string)
	return v, ok && v != ""
}

// IsFinal is an explicit marker, not inferred from the absence of a next.
func (s Status) IsFinal() bool {
	v, _ := s.Extra["is_final"].(bool)
	return v
}

// StatusEvent is the audit record of a single promotion.
type StatusEvent struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	ObjectKind PayableKind
	ObjectID   uuid.UUID
	FromStatus string
	ToStatus   string
	Message    string
}
