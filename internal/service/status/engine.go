package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/logger"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
	"github.com/shermatov/cargomart/internal/service/discount"
	"github.com/shermatov/cargomart/internal/service/settlement"
)

// CashbacksExtraKey is where queued cashbacks live in a payable's extra bag.
const CashbacksExtraKey = "cashbacks"

// Engine promotes payables along their status chain and runs the financial
// side effects of the landing status in the same transaction.
type Engine struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewEngine(storage repository.Storage, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Engine{
		storage: storage,
		logger:  log,
	}
}

// Promote moves the payable to target. The payable row is locked for the
// duration, so concurrent webhook retries serialize and the second one sees
// the already-promoted status as a no-op. Allowed moves are the forward edge
// and the backward edge of the chain; anything else is ErrInvalidTransition.
//
// Side effects, all inside the same transaction:
//   - landing on "paid" or "done" for a promo-eligible kind grants the
//     cashbacks queued on the payable and settles them immediately;
//   - landing on "deleted" voids the object's ledger footprint.
func (e *Engine) Promote(ctx context.Context, cfg models.SystemConfig, kind models.PayableKind, objectID uuid.UUID, target, message string) (models.Payable, error) {
	var promoted models.Payable

	err := e.storage.InTx(ctx, func(store repository.Storage) error {
		graph, err := LoadGraph(ctx, store.Status())
		if err != nil {
			return err
		}

		payable, err := store.Payable().LockPayable(ctx, kind, objectID)
		if err != nil {
			return err
		}

		if payable.Status == target {
			promoted = payable
			return nil
		}

		if _, ok := graph.Get(kind, target); !ok {
			return fmt.Errorf("%s %q: %w", kind, target, apperrors.ErrStatusNotFound)
		}
		if !graph.CanTransition(kind, payable.Status, target) {
			return fmt.Errorf("%s %q -> %q: %w", kind, payable.Status, target, apperrors.ErrInvalidTransition)
		}

		promoted, err = store.Payable().UpdateStatus(ctx, payable.ID, target, time.Now())
		if err != nil {
			return err
		}

		if _, err := store.Status().CreateEvent(ctx, models.StatusEvent{
			ObjectKind: kind,
			ObjectID:   payable.ID,
			FromStatus: payable.Status,
			ToStatus:   target,
			Message:    message,
		}); err != nil {
			return err
		}

		return e.applySideEffects(ctx, store, cfg, &promoted, target)
	})
	if err != nil {
		return promoted, fmt.Errorf("can't promote %s %s: %w", kind, objectID, err)
	}

	return promoted, nil
}

func (e *Engine) applySideEffects(ctx context.Context, store repository.Storage, cfg models.SystemConfig, payable *models.Payable, target string) error {
	settle := settlement.NewService(store, e.logger)

	switch target {
	case models.StatusPaid, models.StatusDone:
		if !cfg.PromoEligible(payable.Kind) {
			return nil
		}
		return e.grantQueuedCashbacks(ctx, store, settle, payable)
	case models.StatusDeleted:
		return settle.VoidObjectPayments(ctx, store, payable.Ref())
	}

	return nil
}

// grantQueuedCashbacks consumes the cashbacks queued on the payable's extra
// bag, materializes them against the most recent completed payment of the
// object and settles them. An object with no completed payment keeps its
// queue untouched for a later promotion.
func (e *Engine) grantQueuedCashbacks(ctx context.Context, store repository.Storage, settle *settlement.Service, payable *models.Payable) error {
	base, err := store.Ledger().LastCompletedForObject(ctx, payable.Ref())
	if errors.Is(err, apperrors.ErrTransactionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	cashbacks, err := discount.CashbacksFromExtra(ctx, store, payable, CashbacksExtraKey, true)
	if err != nil {
		return err
	}

	for _, cb := range cashbacks {
		entry, err := cb.CreateTransaction(ctx, store, base)
		if err != nil {
			return err
		}
		// The cashback entry carries the payable's ref. Keep settled
		// partials intact, granting a reward is not a payment retry.
		if _, err := settle.CompletePayments(ctx, []uuid.UUID{entry.ID}, settlement.KeepPartial()); err != nil {
			return err
		}

		e.logger.Info("promo cashback granted",
			"object_kind", payable.Kind,
			"object_id", payable.ID,
			"user_id", cb.UserID,
			"entry_id", entry.ID,
		)
	}

	return nil
}
