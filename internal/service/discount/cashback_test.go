package discount

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shermatov/cargomart/internal/models"
)

func TestCashback_Resolve(t *testing.T) {
	userID := uuid.New()

	t.Run("fixed amount ignores base", func(t *testing.T) {
		cb := FixedCashback(userID, decimal.RequireFromString("7.505"), "USD")

		amount, currency, err := cb.Resolve(decimal.NewFromInt(1000), "EUR")

		require.NoError(t, err)
		require.Equal(t, "7.51", amount.StringFixed(2))
		require.Equal(t, "USD", currency)
	})

	t.Run("percentage resolves against base", func(t *testing.T) {
		cb := PercentCashback(userID, decimal.NewFromInt(10))

		amount, currency, err := cb.Resolve(decimal.NewFromInt(85), "USD")

		require.NoError(t, err)
		require.Equal(t, "8.50", amount.StringFixed(2))
		require.Equal(t, "USD", currency)
	})

	t.Run("empty cashback fails", func(t *testing.T) {
		_, _, err := Cashback{UserID: userID}.Resolve(decimal.NewFromInt(85), "USD")

		require.Error(t, err)
	})
}

func TestCashbacksFromExtra(t *testing.T) {
	userID := uuid.New()

	t.Run("missing key yields nothing", func(t *testing.T) {
		payable := &models.Payable{Extra: map[string]any{}}

		got, err := CashbacksFromExtra(t.Context(), nil, payable, "cashbacks", false)

		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("dump and rehydrate", func(t *testing.T) {
		queued := []Cashback{
			FixedCashback(userID, decimal.RequireFromString("5.00"), "USD"),
			PercentCashback(userID, decimal.NewFromInt(10)),
			{UserID: userID, Percentage: decimalPtr(t, "3"), Used: true},
		}
		payable := &models.Payable{Extra: map[string]any{
			"cashbacks": DumpCashbacks(queued),
		}}

		got, err := CashbacksFromExtra(t.Context(), nil, payable, "cashbacks", false)

		require.NoError(t, err)
		require.Len(t, got, 2, "already consumed cashbacks must be skipped")

		require.NotNil(t, got[0].Amount)
		require.Equal(t, "5.00", got[0].Amount.StringFixed(2))
		require.Equal(t, "USD", got[0].Currency)
		require.Equal(t, userID, got[0].UserID)

		require.NotNil(t, got[1].Percentage)
		require.Equal(t, "10", got[1].Percentage.String())
	})
}

func decimalPtr(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d := decimal.RequireFromString(value)
	return &d
}
