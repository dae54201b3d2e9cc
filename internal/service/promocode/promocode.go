// Package promocode manages per-user referral codes and the lazy owner-side
// cashback computed from a consumer's completed purchase.
package promocode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/logger"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
	"github.com/shermatov/cargomart/internal/service/converter"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	// Collisions on an 8 char random value are vanishingly rare; the retry
	// bound exists so a broken random source can't loop forever.
	maxGenerateAttempts = 5
)

var hundred = decimal.NewFromInt(100)

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

// GetOrCreate returns the user's promo code, generating one on first call.
// A value collision with another user's code regenerates and retries.
func (s *Service) GetOrCreate(ctx context.Context, userID uuid.UUID) (models.PromoCode, error) {
	code, err := s.storage.PromoCode().GetByUser(ctx, userID)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, apperrors.ErrPromoCodeNotFound) {
		return code, fmt.Errorf("can't get promo code: %w", err)
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		value, err := randomCode()
		if err != nil {
			return code, fmt.Errorf("can't generate promo code value: %w", err)
		}

		code, err = s.storage.PromoCode().CreatePromoCode(ctx, userID, value)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, apperrors.ErrPromoCodeValueTaken) {
			s.logger.Warn("promo code value collision, regenerating", "user_id", userID)
			continue
		}
		return code, fmt.Errorf("can't create promo code: %w", err)
	}

	return code, fmt.Errorf("promo code generation exhausted %d attempts", maxGenerateAttempts)
}

// RegisterBenefit records that consumer completed a qualifying purchase under
// the given code value. entryID points at the consumer's completed ledger
// entry; the owner's cashback is computed from it later by NextCashback.
func (s *Service) RegisterBenefit(ctx context.Context, codeValue string, consumerID uuid.UUID, entryID *uuid.UUID) (models.PromoCodeBenefit, error) {
	var benefit models.PromoCodeBenefit

	code, err := s.storage.PromoCode().GetByValue(ctx, codeValue)
	if err != nil {
		return benefit, fmt.Errorf("can't register promo benefit: %w", err)
	}

	benefit, err = s.storage.PromoCode().CreateBenefit(ctx, code.ID, consumerID, entryID)
	if err != nil {
		return benefit, fmt.Errorf("can't register promo benefit: %w", err)
	}

	return benefit, nil
}

// OwnerCashback is the resolved reward of a single consumed benefit,
// expressed in the reporting currency.
type OwnerCashback struct {
	Amount   decimal.Decimal
	Currency string
	Benefit  models.PromoCodeBenefit
}

// NextCashback consumes the oldest benefit not yet granted to the code owner
// and returns the owner's reward: the configured percentage of what the
// consumer was actually charged, converted into the reporting currency. The
// benefit row is locked while consumed so two concurrent requests can't grant
// the same benefit twice. ErrNoUnusedBenefit when nothing is left to grant.
func (s *Service) NextCashback(ctx context.Context, ownerID uuid.UUID) (OwnerCashback, error) {
	var result OwnerCashback

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		cfg, err := store.Config().ActiveConfig(ctx)
		if err != nil {
			return err
		}

		code, err := store.PromoCode().GetByUser(ctx, ownerID)
		if err != nil {
			return err
		}

		benefit, err := store.PromoCode().OldestOwnerUnused(ctx, code.ID)
		if err != nil {
			return err
		}

		if benefit.TransactionID == nil {
			return fmt.Errorf("benefit %s has no payment entry: %w", benefit.ID, apperrors.ErrTransactionNotFound)
		}
		entry, err := store.Ledger().GetEntry(ctx, *benefit.TransactionID)
		if err != nil {
			return err
		}

		snapshot, err := converter.Load(ctx, store.Currency())
		if err != nil {
			return err
		}

		amount := entry.ChargedAmount().Mul(cfg.PromoCashbackPercent).Div(hundred)
		converted, err := snapshot.Convert(amount, entry.Currency, cfg.ReportingCurrency)
		if err != nil {
			return err
		}

		if err := store.PromoCode().MarkOwnerUsed(ctx, benefit.ID); err != nil {
			return err
		}

		benefit.UsedByOwner = true
		result = OwnerCashback{
			Amount:   converted,
			Currency: cfg.ReportingCurrency,
			Benefit:  benefit,
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("can't compute next promo cashback: %w", err)
	}

	return result, nil
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
