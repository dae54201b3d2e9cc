package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purpose encodes the direction and meaning of a ledger entry.
// Amounts are always stored non-negative, direction comes from here.
type Purpose string

const (
	PurposeBalanceIncrease     Purpose = "balance_increase"
	PurposeBalanceDecrease     Purpose = "balance_decrease"
	PurposeOrderPayment        Purpose = "order_payment"
	PurposeShipmentPayment     Purpose = "shipment_payment"
	PurposeCourierOrderPayment Purpose = "courier_order_payment"
	PurposeCashback            Purpose = "cashback"
	PurposeRefund              Purpose = "refund"
	PurposeCommission          Purpose = "commission"
)

// Credits reports whether completing an entry with this purpose
// increases the user's balance.
func (p Purpose) Credits() bool {
	switch p {
	case PurposeBalanceIncrease, PurposeCashback, PurposeRefund:
		return true
	}
	return false
}

// Instrument is the payment instrument an entry was settled with.
type Instrument string

const (
	InstrumentCash    Instrument = "cash"
	InstrumentCard    Instrument = "card"
	InstrumentBalance Instrument = "balance"
)

// Transaction is a single ledger entry: one money movement with a purpose,
// amount, currency and completion state. ParentID groups split payments,
// CashbackToID marks the entry as a cashback reward for another entry.
type Transaction struct {
	ID            uuid.UUID
	InvoiceNumber string
	CreatedAt     time.Time

	UserID   uuid.UUID
	Purpose  Purpose
	Type     Instrument
	Amount   decimal.Decimal // non-negative, fixed at creation in Currency
	Currency string

	// Amount before any conversion, kept for audit.
	OriginalAmount   decimal.Decimal
	OriginalCurrency string

	// Related payable object, if any. Identifier is denormalized so the
	// entry stays readable after the object is gone.
	ObjectKind       PayableKind
	ObjectID         uuid.UUID
	ObjectIdentifier string

	ParentID     *uuid.UUID
	CashbackToID *uuid.UUID

	Completed   bool
	CompletedAt *time.Time

	IsDeleted bool
	DeletedAt *time.Time

	// What was actually charged after discounts, filled at settlement time.
	DiscountedAmount         *decimal.Decimal
	DiscountedAmountCurrency string

	Extra map[string]any
}

func (t *Transaction) Ref() PayableRef {
	return PayableRef{Kind: t.ObjectKind, ObjectID: t.ObjectID, Identifier: t.ObjectIdentifier}
}

// ChargedAmount is the amount settlement applies to the balance:
// the discounted amount when one was computed, the full amount otherwise.
func (t *Transaction) ChargedAmount() decimal.Decimal {
	if t.DiscountedAmount != nil {
		return *t.DiscountedAmount
	}
	return t.Amount
}
