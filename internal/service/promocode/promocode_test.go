package promocode

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
	"github.com/shermatov/cargomart/internal/repository/postgres"
	"github.com/shermatov/cargomart/internal/service/settlement"
	"github.com/shermatov/cargomart/internal/testutil"
)

func TestRandomCode(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		code, err := randomCode()
		require.NoError(t, err)

		assert.Len(t, code, codeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q in %q", r, code)
		}

		seen[code] = true
	}

	assert.Greater(t, len(seen), 90, "codes must be effectively unique")
}

func TestPromoCodeService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(s *Service, storage repository.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			for _, c := range []models.Currency{
				{Code: "USD", NumericCode: 840, Symbol: "$", Rate: decimal.NewFromInt(1)},
				{Code: "AED", NumericCode: 784, Symbol: "AED", Rate: decimal.RequireFromString("0.27")},
			} {
				require.NoError(t, storage.Currency().SaveCurrency(t.Context(), c))
			}
			require.NoError(t, storage.Config().SaveConfig(t.Context(), models.SystemConfig{
				ReportingCurrency:    "USD",
				PromoCashbackPercent: decimal.NewFromInt(10),
				PromoEligibleKinds:   []models.PayableKind{models.KindOrder},
			}, true))

			fn(NewService(storage, nil), storage)
		})
	}

	t.Run("GetOrCreate", func(t *testing.T) {
		withTx(t, func(s *Service, storage repository.Storage) {
			userID := uuid.New()

			code, err := s.GetOrCreate(t.Context(), userID)
			require.NoError(t, err)
			require.Len(t, code.Value, codeLength)

			again, err := s.GetOrCreate(t.Context(), userID)
			require.NoError(t, err)
			require.Equal(t, code.ID, again.ID, "one code per user")
		})
	})

	t.Run("NextCashback", func(t *testing.T) {
		withTx(t, func(s *Service, storage repository.Storage) {
			ownerID := uuid.New()
			consumerID := uuid.New()

			code, err := s.GetOrCreate(t.Context(), ownerID)
			require.NoError(t, err)

			// The consumer's completed purchase: charged 100 AED.
			settle := settlement.NewService(storage, nil)
			payment, err := settle.CreateEntry(t.Context(), settlement.CreateEntryParams{
				UserID:   consumerID,
				Purpose:  models.PurposeOrderPayment,
				Type:     models.InstrumentCard,
				Amount:   decimal.NewFromInt(100),
				Currency: "AED",
			})
			require.NoError(t, err)
			_, err = settle.CompletePayments(t.Context(), []uuid.UUID{payment.ID})
			require.NoError(t, err)

			_, err = s.RegisterBenefit(t.Context(), code.Value, consumerID, &payment.ID)
			require.NoError(t, err)

			cashback, err := s.NextCashback(t.Context(), ownerID)
			require.NoError(t, err)

			// 10% of 100 AED, reported in USD: 10 * 0.27 = 2.70.
			require.Equal(t, "USD", cashback.Currency)
			require.True(t, cashback.Amount.Equal(decimal.RequireFromString("2.70")), "got %s", cashback.Amount)
			require.True(t, cashback.Benefit.UsedByOwner)

			_, err = s.NextCashback(t.Context(), ownerID)
			require.ErrorIs(t, err, apperrors.ErrNoUnusedBenefit, "benefit is consumed exactly once")
		})
	})
}
