package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DiscountReasonSimple       = "simple"
	DiscountReasonInviteFriend = "invite_friend"
)

// Discount is a percentage reduction attached to a payable object.
// Percentage is not range-checked at write time; over-discount is clamped
// when the discount is applied to a price.
type Discount struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	ObjectKind PayableKind
	ObjectID   uuid.UUID
	Percentage decimal.Decimal
	Reason     string
	Extra      map[string]any
}
