// Package discount attaches percentage discounts to payable objects and
// computes discounted prices for the settlement engine.
package discount

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// ApplyToPrice applies discounts in sequence, each against the already
// discounted running amount, in the order they were attached. Never sort by
// percentage: [20%, 30%] on 100 is 56.00, not 50.00. The result is floored
// at zero and rounded to 2 places.
func ApplyToPrice(base decimal.Decimal, discounts []models.Discount) decimal.Decimal {
	amount := base

	for _, d := range discounts {
		amount = amount.Sub(amount.Mul(d.Percentage).Div(hundred))
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return amount.Round(2)
}

type Spec struct {
	Percentage decimal.Decimal `validate:"dgte0"`
	Reason     string          `validate:"omitempty,oneof=simple invite_friend"`
	Extra      map[string]any
}

type Service struct {
	storage  repository.Storage
	validate *validator.Validate
}

func NewService(storage repository.Storage) *Service {
	validate := validator.New()
	_ = validate.RegisterValidation("dgte0", validateNonNegativeDecimal)

	return &Service{
		storage:  storage,
		validate: validate,
	}
}

func validateNonNegativeDecimal(fl validator.FieldLevel) bool {
	d, ok := fl.Field().Interface().(decimal.Decimal)
	return ok && !d.IsNegative()
}

// Add attaches discounts to the object. Existing ledger entries are not
// recomputed here, callers recalculate affected entries themselves.
func (s *Service) Add(ctx context.Context, ref models.PayableRef, specs []Spec) ([]models.Discount, error) {
	for _, spec := range specs {
		if err := s.validate.Struct(spec); err != nil {
			return nil, fmt.Errorf("invalid discount spec: %w", err)
		}
	}

	created := make([]models.Discount, 0, len(specs))

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		for _, spec := range specs {
			d, err := store.Discount().CreateDiscount(ctx, ref, repository.DiscountSpec{
				Percentage: spec.Percentage,
				Reason:     spec.Reason,
				Extra:      spec.Extra,
			})
			if err != nil {
				return err
			}
			created = append(created, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't add discounts: %w", err)
	}

	return created, nil
}

// Revoke removes all discounts from the object and recomputes the discounted
// amount of every pending ledger entry tied to it, so the entries charge the
// undiscounted price again.
func (s *Service) Revoke(ctx context.Context, ref models.PayableRef) error {
	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		if _, err := store.Discount().DeleteForObject(ctx, ref); err != nil {
			return err
		}

		pending, err := store.Ledger().PendingForObject(ctx, ref)
		if err != nil {
			return err
		}

		for _, entry := range pending {
			if entry.DiscountedAmount == nil {
				continue
			}
			err := store.Ledger().UpdateDiscountedAmount(ctx, entry.ID, entry.Amount, entry.Currency)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't revoke discounts: %w", err)
	}

	return nil
}

// DiscountedPrice computes the price of the entry against the current
// discounts of its related object.
func DiscountedPrice(ctx context.Context, store repository.Storage, entry models.Transaction) (decimal.Decimal, error) {
	if entry.Ref().IsZero() {
		return entry.Amount.Round(2), nil
	}

	discounts, err := store.Discount().ListForObject(ctx, entry.Ref())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("can't list discounts: %w", err)
	}

	return ApplyToPrice(entry.Amount, discounts), nil
}
