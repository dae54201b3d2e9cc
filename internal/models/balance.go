package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance is a per-user, per-currency running total. It is mutated only by
// completing ledger entries and may go negative (customer debt).
type Balance struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Currency  string
	Amount    decimal.Decimal
	UpdatedAt time.Time
}
