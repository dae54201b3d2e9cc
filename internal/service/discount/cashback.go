package discount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
)

// Cashback is a queued reward: either a fixed (amount, currency) or a
// percentage to be resolved later against the cashbackable amount of a
// target ledger entry. Queued cashbacks are serialized into a JSON list on a
// payable's extra bag and consumed exactly once.
type Cashback struct {
	UserID     uuid.UUID        `json:"user_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Used       bool             `json:"used"`
}

// FixedCashback builds a reward of a concrete amount.
func FixedCashback(userID uuid.UUID, amount decimal.Decimal, currency string) Cashback {
	return Cashback{UserID: userID, Amount: &amount, Currency: currency}
}

// PercentCashback builds a reward resolved against a future base transaction.
func PercentCashback(userID uuid.UUID, percentage decimal.Decimal) Cashback {
	return Cashback{UserID: userID, Percentage: &percentage}
}

// Resolve converts the cashback to a concrete (amount, currency) pair.
// base is the cashbackable amount of the target entry in its currency.
func (c Cashback) Resolve(base decimal.Decimal, baseCurrency string) (decimal.Decimal, string, error) {
	if c.Amount != nil {
		return c.Amount.Round(2), c.Currency, nil
	}
	if c.Percentage == nil {
		return decimal.Decimal{}, "", errors.New("cashback has neither amount nor percentage")
	}

	return base.Mul(*c.Percentage).Div(hundred).Round(2), baseCurrency, nil
}

// CreateTransaction materializes the cashback as an incomplete ledger entry
// rewarding UserID, linked to the completed entry that triggered it. The
// settlement engine picks it up through the cashback cascade.
func (c Cashback) CreateTransaction(ctx context.Context, store repository.Storage, cashbackTo models.Transaction) (models.Transaction, error) {
	var entry models.Transaction

	if c.Percentage != nil {
		sum, err := store.Ledger().CashbackChildrenSum(ctx, cashbackTo.ID)
		if err != nil {
			return entry, err
		}
		base := cashbackTo.Amount.Sub(sum)
		if base.IsNegative() {
			base = decimal.Zero
		}

		amount, currency, err := c.Resolve(base, cashbackTo.Currency)
		if err != nil {
			return entry, err
		}
		return c.createEntry(ctx, store, cashbackTo, amount, currency)
	}

	amount, currency, err := c.Resolve(decimal.Zero, cashbackTo.Currency)
	if err != nil {
		return entry, err
	}

	return c.createEntry(ctx, store, cashbackTo, amount, currency)
}

func (c Cashback) createEntry(ctx context.Context, store repository.Storage, cashbackTo models.Transaction, amount decimal.Decimal, currency string) (models.Transaction, error) {
	return store.Ledger().CreateEntry(ctx, repository.CreateEntryParams{
		UserID:           c.UserID,
		Purpose:          models.PurposeCashback,
		Type:             models.InstrumentBalance,
		Amount:           amount,
		Currency:         currency,
		OriginalAmount:   amount,
		OriginalCurrency: currency,
		Object:           cashbackTo.Ref(),
		CashbackToID:     &cashbackTo.ID,
	})
}

// CashbacksFromExtra rehydrates the cashback list stored under key in a
// payable's extra bag. Returns only entries not yet consumed. When markUsed
// is set the returned entries are flagged used and the extra bag is persisted,
// so each queued cashback is granted exactly once.
func CashbacksFromExtra(ctx context.Context, store repository.Storage, payable *models.Payable, key string, markUsed bool) ([]Cashback, error) {
	raw, ok := payable.Extra[key]
	if !ok {
		return nil, nil
	}

	// The bag comes back from jsonb as []any of maps, round trip through
	// encoding/json to get typed values.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("can't encode cashbacks from extra: %w", err)
	}

	var all []Cashback
	if err := json.Unmarshal(encoded, &all); err != nil {
		return nil, fmt.Errorf("can't decode cashbacks from extra: %w", err)
	}

	var unused []Cashback
	for i := range all {
		if all[i].Used {
			continue
		}
		unused = append(unused, all[i])
		all[i].Used = true
	}

	if markUsed && len(unused) > 0 {
		payable.Extra[key] = DumpCashbacks(all)
		if err := store.Payable().UpdateExtra(ctx, payable.ID, payable.Extra); err != nil {
			return nil, fmt.Errorf("can't persist consumed cashbacks: %w", err)
		}
	}

	return unused, nil
}

// DumpCashbacks serializes the list for storage in an extra bag.
func DumpCashbacks(cashbacks []Cashback) []any {
	out := make([]any, 0, len(cashbacks))
	for _, c := range cashbacks {
		out = append(out, c.Dump())
	}
	return out
}

// Dump returns the JSON-bag form of the cashback.
func (c Cashback) Dump() map[string]any {
	m := map[string]any{
		"user_id": c.UserID.String(),
		"used":    c.Used,
	}
	if c.Amount != nil {
		m["amount"] = c.Amount.String()
		m["currency"] = c.Currency
	}
	if c.Percentage != nil {
		m["percentage"] = c.Percentage.String()
	}
	return m
}
