package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/models"
)

// Currency repository interface
type CurrencyRepo interface {
	// Upsert currency by code
	SaveCurrency(ctx context.Context, currency models.Currency) error

	GetCurrency(ctx context.Context, code string) (models.Currency, error)
	ListCurrencies(ctx context.Context) ([]models.Currency, error)

	// Return the code of the currency with rate 1
	// If no such currency exists must return apperrors.ErrNoBaseCurrency
	BaseCurrency(ctx context.Context) (string, error)
}

// Balance repository interface
type BalanceRepo interface {
	// Idempotent lookup or lazy creation of the (user, currency) balance
	GetOrCreateBalance(ctx context.Context, userID uuid.UUID, currency string) (models.Balance, error)

	GetBalance(ctx context.Context, userID uuid.UUID, currency string) (models.Balance, error)

	// Apply delta with a database side atomic increment, never read-modify-write.
	// Delta may be negative, the balance is allowed to go below zero.
	AddToBalance(ctx context.Context, userID uuid.UUID, currency string, delta decimal.Decimal) (models.Balance, error)
}

type CreateEntryParams struct {
	UserID           uuid.UUID
	Purpose          models.Purpose
	Type             models.Instrument
	Amount           decimal.Decimal
	Currency         string
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	Object           models.PayableRef
	ParentID         *uuid.UUID
	CashbackToID     *uuid.UUID
	Completed        bool
	CompletedAt      *time.Time
	Extra            map[string]any
}

// Ledger entry repository interface
type LedgerRepo interface {
	CreateEntry(ctx context.Context, arg CreateEntryParams) (models.Transaction, error)

	// Get entry by id, soft deleted ones included
	GetEntry(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// Select entries with a row level lock to serialize concurrent
	// completion attempts. Soft deleted entries are skipped.
	LockEntries(ctx context.Context, ids []uuid.UUID) ([]models.Transaction, error)

	// Mark entry completed, record the instrument actually used and the
	// discounted amount that was charged
	CompleteEntry(ctx context.Context, id uuid.UUID, at time.Time, instrument models.Instrument, discounted decimal.Decimal, discountedCurrency string) (models.Transaction, error)

	// Revert a completed entry back to pending
	UncompleteEntry(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	UpdateDiscountedAmount(ctx context.Context, id uuid.UUID, discounted decimal.Decimal, discountedCurrency string) error

	// Non deleted entries whose cashback_to points at the given entry
	CashbackChildren(ctx context.Context, entryID uuid.UUID) ([]models.Transaction, error)

	// Sum of amounts of non deleted cashback children, completed or not
	CashbackChildrenSum(ctx context.Context, entryID uuid.UUID) (decimal.Decimal, error)

	// Ids of the cashback_to chain above the given entry, used for the
	// cycle guard at creation time
	CashbackAncestors(ctx context.Context, entryID uuid.UUID) ([]uuid.UUID, error)

	// Entries split from the given parent
	ChildrenOfParent(ctx context.Context, parentID uuid.UUID) ([]models.Transaction, error)

	SoftDeleteEntry(ctx context.Context, id uuid.UUID, at time.Time) error
	DetachParent(ctx context.Context, id uuid.UUID) error

	// Incomplete non deleted entries attached to the payable object
	PendingForObject(ctx context.Context, ref models.PayableRef) ([]models.Transaction, error)

	// Completed entries for the payable object flagged as partial payments
	CompletedPartialsForObject(ctx context.Context, ref models.PayableRef) ([]models.Transaction, error)

	// Most recently completed non deleted entry for the payable object
	// If none exists must return apperrors.ErrTransactionNotFound
	LastCompletedForObject(ctx context.Context, ref models.PayableRef) (models.Transaction, error)
}

type DiscountSpec struct {
	Percentage decimal.Decimal
	Reason     string
	Extra      map[string]any
}

// Discount repository interface
type DiscountRepo interface {
	CreateDiscount(ctx context.Context, ref models.PayableRef, spec DiscountSpec) (models.Discount, error)

	// Discounts attached to the object in insertion order
	ListForObject(ctx context.Context, ref models.PayableRef) ([]models.Discount, error)

	DeleteForObject(ctx context.Context, ref models.PayableRef) (int64, error)
}

// Promo code repository interface
type PromoCodeRepo interface {
	// Create code with the given value
	// On value collision must return apperrors.ErrPromoCodeValueTaken
	CreatePromoCode(ctx context.Context, userID uuid.UUID, value string) (models.PromoCode, error)

	GetByUser(ctx context.Context, userID uuid.UUID) (models.PromoCode, error)
	GetByValue(ctx context.Context, value string) (models.PromoCode, error)

	CreateBenefit(ctx context.Context, promoCodeID uuid.UUID, consumerID uuid.UUID, transactionID *uuid.UUID) (models.PromoCodeBenefit, error)

	// Oldest benefit not yet consumed by the owner, locked for update
	// If none exists must return apperrors.ErrNoUnusedBenefit
	OldestOwnerUnused(ctx context.Context, promoCodeID uuid.UUID) (models.PromoCodeBenefit, error)

	MarkOwnerUsed(ctx context.Context, benefitID uuid.UUID) error
	MarkConsumerUsed(ctx context.Context, benefitID uuid.UUID) error
}

// Status repository interface
type StatusRepo interface {
	ListStatuses(ctx context.Context) ([]models.Status, error)
	GetStatus(ctx context.Context, kind models.PayableKind, codename string) (models.Status, error)
	CreateEvent(ctx context.Context, event models.StatusEvent) (models.StatusEvent, error)
}

// Payable repository interface
type PayableRepo interface {
	CreatePayable(ctx context.Context, p models.Payable) (models.Payable, error)

	GetPayable(ctx context.Context, kind models.PayableKind, id uuid.UUID) (models.Payable, error)

	// Same as GetPayable but with a row level lock, used by the status
	// engine to serialize concurrent promotions
	LockPayable(ctx context.Context, kind models.PayableKind, id uuid.UUID) (models.Payable, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) (models.Payable, error)
	UpdateExtra(ctx context.Context, id uuid.UUID, extra map[string]any) error
}

// System configuration repository interface
type ConfigRepo interface {
	// Return the single active configuration row
	// If none is active must return apperrors.ErrNoActiveConfig
	ActiveConfig(ctx context.Context) (models.SystemConfig, error)

	SaveConfig(ctx context.Context, cfg models.SystemConfig, active bool) error
}

// Storage aggregates entity repositories over one connection or transaction
type Storage interface {
	Currency() CurrencyRepo
	Balance() BalanceRepo
	Ledger() LedgerRepo
	Discount() DiscountRepo
	PromoCode() PromoCodeRepo
	Status() StatusRepo
	Payable() PayableRepo
	Config() ConfigRepo

	// Run fn against a storage bound to one database transaction.
	// Committed when fn returns nil, rolled back otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}
