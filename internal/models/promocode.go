package models

import (
	"time"

	"github.com/google/uuid"
)

// PromoCode is the per-user referral code. Value is random alphanumeric,
// regenerated on collision at creation time.
type PromoCode struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UserID    uuid.UUID
	Value     string
}

// PromoCodeBenefit links a consumer's qualifying purchase to a promo code.
// The discount side (consumer) and the cashback side (owner) are granted
// independently, hence the two used flags.
type PromoCodeBenefit struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	PromoCodeID    uuid.UUID
	ConsumerID     uuid.UUID
	TransactionID  *uuid.UUID // consumer's completed payment entry
	UsedByConsumer bool
	UsedByOwner    bool
}
