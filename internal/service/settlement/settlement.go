// Package settlement owns the ledger: balance mutation, entry creation and
// the transactional completion of payments with their cashback cascade.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/logger"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
	"github.com/shermatov/cargomart/internal/service/converter"
	"github.com/shermatov/cargomart/internal/service/discount"
)

type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Service{
		storage: storage,
		logger:  log,
	}
}

// GetOrCreateBalance returns the (user, currency) balance, creating a zero
// one on first access.
func (s *Service) GetOrCreateBalance(ctx context.Context, userID uuid.UUID, currency string) (models.Balance, error) {
	return s.storage.Balance().GetOrCreateBalance(ctx, userID, currency)
}

// IncreaseBalance converts amount into the user's active balance currency,
// records a completed balance-increase entry and atomically credits the
// balance. The original amount and currency are kept in the entry for audit.
func (s *Service) IncreaseBalance(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, instrument models.Instrument) (models.Balance, error) {
	return s.applyBalanceChange(ctx, userID, amount, currency, instrument, models.PurposeBalanceIncrease)
}

// DecreaseBalance is the debit counterpart of IncreaseBalance.
func (s *Service) DecreaseBalance(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, instrument models.Instrument) (models.Balance, error) {
	return s.applyBalanceChange(ctx, userID, amount, currency, instrument, models.PurposeBalanceDecrease)
}

func (s *Service) applyBalanceChange(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, instrument models.Instrument, purpose models.Purpose) (models.Balance, error) {
	var balance models.Balance

	if amount.IsNegative() {
		return balance, fmt.Errorf("%s %s: %w", purpose, amount, apperrors.ErrNegativeAmount)
	}

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		snapshot, err := converter.Load(ctx, store.Currency())
		if err != nil {
			return err
		}
		base, err := snapshot.Base()
		if err != nil {
			return err
		}

		converted, err := snapshot.Convert(amount, currency, base)
		if err != nil {
			return err
		}

		if _, err := store.Balance().GetOrCreateBalance(ctx, userID, base); err != nil {
			return err
		}

		now := time.Now()
		_, err = store.Ledger().CreateEntry(ctx, repository.CreateEntryParams{
			UserID:           userID,
			Purpose:          purpose,
			Type:             instrument,
			Amount:           converted,
			Currency:         base,
			OriginalAmount:   amount,
			OriginalCurrency: currency,
			Completed:        true,
			CompletedAt:      &now,
			Extra: map[string]any{
				"original_amount":   amount.String(),
				"original_currency": currency,
			},
		})
		if err != nil {
			return err
		}

		delta := converted
		if !purpose.Credits() {
			delta = converted.Neg()
		}

		balance, err = store.Balance().AddToBalance(ctx, userID, base, delta)
		return err
	})
	if err != nil {
		return balance, fmt.Errorf("can't apply balance change: %w", err)
	}

	return balance, nil
}

// CreateEntryParams mirrors the repository params minus the fields the
// service owns (completion state is decided by settlement, not callers).
type CreateEntryParams struct {
	UserID       uuid.UUID
	Purpose      models.Purpose
	Type         models.Instrument
	Amount       decimal.Decimal
	Currency     string
	Object       models.PayableRef
	ParentID     *uuid.UUID
	CashbackToID *uuid.UUID
	Extra        map[string]any
}

// CreateEntry records a pending ledger entry. Amounts are non-negative by
// contract; a cashback entry may never be its own transitive ancestor.
func (s *Service) CreateEntry(ctx context.Context, arg CreateEntryParams) (models.Transaction, error) {
	var entry models.Transaction

	if arg.Amount.IsNegative() {
		return entry, fmt.Errorf("create entry %s: %w", arg.Amount, apperrors.ErrNegativeAmount)
	}

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		if arg.CashbackToID != nil {
			ancestors, err := store.Ledger().CashbackAncestors(ctx, *arg.CashbackToID)
			if err != nil {
				return err
			}
			for _, id := range ancestors {
				if id == *arg.CashbackToID {
					return apperrors.ErrCashbackCycle
				}
			}
		}

		var err error
		entry, err = store.Ledger().CreateEntry(ctx, repository.CreateEntryParams{
			UserID:           arg.UserID,
			Purpose:          arg.Purpose,
			Type:             arg.Type,
			Amount:           arg.Amount,
			Currency:         arg.Currency,
			OriginalAmount:   arg.Amount,
			OriginalCurrency: arg.Currency,
			Object:           arg.Object,
			ParentID:         arg.ParentID,
			CashbackToID:     arg.CashbackToID,
			Extra:            arg.Extra,
		})
		return err
	})
	if err != nil {
		return entry, fmt.Errorf("can't create ledger entry: %w", err)
	}

	return entry, nil
}

// CashbackableAmount is the entry amount minus its non-deleted cashback
// children, completed or not. This is the base percentage cashbacks are
// computed against.
func (s *Service) CashbackableAmount(ctx context.Context, entryID uuid.UUID) (decimal.Decimal, error) {
	var amount decimal.Decimal

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		entry, err := store.Ledger().GetEntry(ctx, entryID)
		if err != nil {
			return err
		}

		sum, err := store.Ledger().CashbackChildrenSum(ctx, entryID)
		if err != nil {
			return err
		}

		amount = entry.Amount.Sub(sum)
		if amount.IsNegative() {
			amount = decimal.Zero
		}
		return nil
	})
	if err != nil {
		return amount, fmt.Errorf("can't compute cashbackable amount: %w", err)
	}

	return amount, nil
}

// SoftDeleteEntry voids an incomplete entry. Completed entries are kept as
// is (no-op, webhooks and admins retry deletes too). The cascade follows the
// static rule for the ledger: incomplete split children and incomplete
// cashback children are soft deleted with it, completed children survive
// with their parent reference detached.
func (s *Service) SoftDeleteEntry(ctx context.Context, entryID uuid.UUID) error {
	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		entry, err := store.Ledger().GetEntry(ctx, entryID)
		if err != nil {
			return err
		}

		return s.softDelete(ctx, store, entry, time.Now())
	})
	if err != nil {
		return fmt.Errorf("can't soft delete entry: %w", err)
	}

	return nil
}

func (s *Service) softDelete(ctx context.Context, store repository.Storage, entry models.Transaction, at time.Time) error {
	if entry.Completed || entry.IsDeleted {
		return nil
	}

	if err := store.Ledger().SoftDeleteEntry(ctx, entry.ID, at); err != nil {
		return err
	}

	children, err := store.Ledger().ChildrenOfParent(ctx, entry.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Completed {
			if err := store.Ledger().DetachParent(ctx, child.ID); err != nil {
				return err
			}
			continue
		}
		if err := s.softDelete(ctx, store, child, at); err != nil {
			return err
		}
	}

	cashbacks, err := store.Ledger().CashbackChildren(ctx, entry.ID)
	if err != nil {
		return err
	}
	for _, child := range cashbacks {
		if child.Completed {
			continue
		}
		if err := s.softDelete(ctx, store, child, at); err != nil {
			return err
		}
	}

	return nil
}

// Callback runs after a successful settlement commit, best effort.
type Callback func(completed []models.Transaction)

type completeOptions struct {
	instrument  models.Instrument
	keepPartial bool
	callback    Callback
}

type CompleteOption func(*completeOptions)

// WithInstrument overrides the payment instrument recorded on completion.
func WithInstrument(instrument models.Instrument) CompleteOption {
	return func(o *completeOptions) { o.instrument = instrument }
}

// KeepPartial suppresses the unmaking of superseded partial payments.
func KeepPartial() CompleteOption {
	return func(o *completeOptions) { o.keepPartial = true }
}

// WithCallback registers a post-commit hook. Its failures are logged and
// never roll back the financial commit.
func WithCallback(cb Callback) CompleteOption {
	return func(o *completeOptions) { o.callback = cb }
}

// CompletePayments atomically completes the given pending entries and their
// cashback children, mutating balances along the way. The whole batch runs
// in one database transaction behind a row level lock, so a payment gateway
// webhook retry racing a user confirmation can't credit a balance twice.
// Entries already completed are accepted silently, the call is idempotent.
// Returns the last entry processed.
func (s *Service) CompletePayments(ctx context.Context, entryIDs []uuid.UUID, opts ...CompleteOption) (models.Transaction, error) {
	var o completeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var last models.Transaction
	var completed []models.Transaction

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		if _, err := store.Config().ActiveConfig(ctx); err != nil {
			return err
		}

		snapshot, err := converter.Load(ctx, store.Currency())
		if err != nil {
			return err
		}
		base, err := snapshot.Base()
		if err != nil {
			return err
		}

		entries, err := store.Ledger().LockEntries(ctx, entryIDs)
		if err != nil {
			return err
		}

		now := time.Now()
		var refs []models.PayableRef
		for _, entry := range entries {
			if entry.Completed {
				last = entry
				continue
			}

			done, err := s.completeOne(ctx, store, snapshot, base, entry, now, o)
			if err != nil {
				return err
			}

			completed = append(completed, done...)
			if len(done) > 0 {
				last = done[0]
			}
			if !entry.Ref().IsZero() {
				refs = append(refs, entry.Ref())
			}
		}

		// Superseded partials are backed out once per top-level entry, never
		// from inside the cashback cascade. Entries settled in this batch are
		// excluded so a partial-flagged entry can't revert itself.
		if !o.keepPartial {
			settled := make(map[uuid.UUID]bool, len(completed))
			for _, e := range completed {
				settled[e.ID] = true
			}
			for _, ref := range refs {
				if err := s.unmakePartials(ctx, store, snapshot, base, ref, settled); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return last, fmt.Errorf("can't complete payments: %w", err)
	}

	if o.callback != nil && len(completed) > 0 {
		s.fireCallback(o.callback, completed)
	}

	return last, nil
}

// completeOne settles a single entry and cascades into its incomplete
// cashback children. Returns the settled entries, the triggering one first.
func (s *Service) completeOne(ctx context.Context, store repository.Storage, snapshot *converter.Snapshot, base string, entry models.Transaction, now time.Time, o completeOptions) ([]models.Transaction, error) {
	discounted, err := discount.DiscountedPrice(ctx, store, entry)
	if err != nil {
		return nil, err
	}

	instrument := entry.Type
	if o.instrument != "" {
		instrument = o.instrument
	}

	done, err := store.Ledger().CompleteEntry(ctx, entry.ID, now, instrument, discounted, entry.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.applyToBalance(ctx, store, snapshot, base, done, false); err != nil {
		return nil, err
	}

	completed := []models.Transaction{done}

	children, err := store.Ledger().CashbackChildren(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.Completed {
			continue
		}
		childDone, err := s.completeOne(ctx, store, snapshot, base, child, now, o)
		if err != nil {
			return nil, err
		}
		completed = append(completed, childDone...)
	}

	return completed, nil
}

// unmakePartials backs out superseded partial payment attempts on the same
// payable, so a retry after an abandoned partial payment leaves the balance
// as if the partial had never settled. settled holds the entries completed
// by the current batch; those are kept.
func (s *Service) unmakePartials(ctx context.Context, store repository.Storage, snapshot *converter.Snapshot, base string, ref models.PayableRef, settled map[uuid.UUID]bool) error {
	partials, err := store.Ledger().CompletedPartialsForObject(ctx, ref)
	if err != nil {
		return err
	}

	for _, partial := range partials {
		if settled[partial.ID] {
			continue
		}

		if err := s.applyToBalance(ctx, store, snapshot, base, partial, true); err != nil {
			return err
		}
		if _, err := store.Ledger().UncompleteEntry(ctx, partial.ID); err != nil {
			return err
		}
	}

	return nil
}

// applyToBalance converts the charged amount into the active balance
// currency and applies it with direction taken from the purpose. reverse
// backs a previous application out.
func (s *Service) applyToBalance(ctx context.Context, store repository.Storage, snapshot *converter.Snapshot, base string, entry models.Transaction, reverse bool) error {
	converted, err := snapshot.Convert(entry.ChargedAmount(), entry.Currency, base)
	if err != nil {
		return err
	}

	if _, err := store.Balance().GetOrCreateBalance(ctx, entry.UserID, base); err != nil {
		return err
	}

	delta := converted
	if !entry.Purpose.Credits() {
		delta = delta.Neg()
	}
	if reverse {
		delta = delta.Neg()
	}

	_, err = store.Balance().AddToBalance(ctx, entry.UserID, base, delta)
	return err
}

// VoidObjectPayments backs out the financial footprint of a payable being
// deleted: completed partial payments are reverted, then they and every
// still pending entry of the object are soft deleted. Runs against the
// caller's storage so it joins the caller's transaction.
func (s *Service) VoidObjectPayments(ctx context.Context, store repository.Storage, ref models.PayableRef) error {
	snapshot, err := converter.Load(ctx, store.Currency())
	if err != nil {
		return err
	}
	base, err := snapshot.Base()
	if err != nil {
		return err
	}

	now := time.Now()

	partials, err := store.Ledger().CompletedPartialsForObject(ctx, ref)
	if err != nil {
		return err
	}
	for _, partial := range partials {
		if err := s.applyToBalance(ctx, store, snapshot, base, partial, true); err != nil {
			return err
		}
		reverted, err := store.Ledger().UncompleteEntry(ctx, partial.ID)
		if err != nil {
			return err
		}
		if err := s.softDelete(ctx, store, reverted, now); err != nil {
			return err
		}
	}

	pending, err := store.Ledger().PendingForObject(ctx, ref)
	if err != nil {
		return err
	}
	for _, entry := range pending {
		if err := s.softDelete(ctx, store, entry, now); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) fireCallback(cb Callback, completed []models.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("settlement callback panicked", "panic", r)
		}
	}()

	cb(completed)
}
