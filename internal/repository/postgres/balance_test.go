package postgres

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
	"github.com/shermatov/cargomart/internal/testutil"
)

func seedCurrencies(t *testing.T, storage repository.Storage) {
	t.Helper()

	for _, c := range []models.Currency{
		{Code: "USD", NumericCode: 840, Symbol: "$", Rate: decimal.NewFromInt(1)},
		{Code: "EUR", NumericCode: 978, Symbol: "€", Rate: decimal.RequireFromString("1.1")},
		{Code: "AED", NumericCode: 784, Symbol: "د.إ", Rate: decimal.RequireFromString("0.27")},
	} {
		require.NoError(t, storage.Currency().SaveCurrency(t.Context(), c))
	}
}

func TestBalanceRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.WithTx(outerTx, t, func(innerTx pgx.Tx) {
			storage := NewStorage(innerTx)
			fn(innerTx, storage)
		})
	}

	t.Run("GetOrCreateBalance", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)
			userID := uuid.New()

			t.Run("creates zero balance on first access", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					balance, err := storage.Balance().GetOrCreateBalance(t.Context(), userID, "USD")

					require.NoError(t, err)
					require.NotZero(t, balance.ID)
					require.Equal(t, userID, balance.UserID)
					require.Equal(t, "USD", balance.Currency)
					require.True(t, balance.Amount.IsZero())
				})
			})

			t.Run("is idempotent", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					first, err := storage.Balance().GetOrCreateBalance(t.Context(), userID, "USD")
					require.NoError(t, err)

					second, err := storage.Balance().GetOrCreateBalance(t.Context(), userID, "USD")

					require.NoError(t, err)
					require.Equal(t, first.ID, second.ID, "second call must return the same row")
				})
			})

			t.Run("distinct per currency", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					usd, err := storage.Balance().GetOrCreateBalance(t.Context(), userID, "USD")
					require.NoError(t, err)

					eur, err := storage.Balance().GetOrCreateBalance(t.Context(), userID, "EUR")

					require.NoError(t, err)
					require.NotEqual(t, usd.ID, eur.ID)
				})
			})
		})

		t.Run("racing first accesses resolve to one row", func(t *testing.T) {
			// Committed sessions on the pool, so the inserts genuinely
			// conflict instead of queueing behind a single transaction.
			storage := NewStorage(pg.Pool)
			seedCurrencies(t, storage)
			userID := uuid.New()

			const callers = 16
			type result struct {
				balance models.Balance
				err     error
			}
			results := make(chan result, callers)

			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b, err := storage.Balance().GetOrCreateBalance(t.Context(), userID, "USD")
					results <- result{balance: b, err: err}
				}()
			}
			wg.Wait()
			close(results)

			var rowID uuid.UUID
			for r := range results {
				require.NoError(t, r.err, "a caller losing the insert race still gets the row")
				require.True(t, r.balance.Amount.IsZero())
				if rowID == uuid.Nil {
					rowID = r.balance.ID
				}
				require.Equal(t, rowID, r.balance.ID, "every caller must see the same balance row")
			}
		})
	})

	t.Run("GetBalance", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("missing balance", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Balance().GetBalance(t.Context(), uuid.New(), "USD")

					require.ErrorIs(t, err, apperrors.ErrBalanceNotFound)
				})
			})
		})
	})

	t.Run("AddToBalance", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)
			userID := uuid.New()

			_, err := storage.Balance().GetOrCreateBalance(t.Context(), userID, "USD")
			require.NoError(t, err)

			t.Run("accumulates deltas", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Balance().AddToBalance(t.Context(), userID, "USD", decimal.RequireFromString("10.50"))
					require.NoError(t, err)

					balance, err := storage.Balance().AddToBalance(t.Context(), userID, "USD", decimal.RequireFromString("4.25"))

					require.NoError(t, err)
					require.True(t, balance.Amount.Equal(decimal.RequireFromString("14.75")), "got %s", balance.Amount)
				})
			})

			t.Run("may go negative", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					balance, err := storage.Balance().AddToBalance(t.Context(), userID, "USD", decimal.RequireFromString("-42.00"))

					require.NoError(t, err)
					require.True(t, balance.Amount.Equal(decimal.RequireFromString("-42.00")), "got %s", balance.Amount)
				})
			})

			t.Run("missing balance", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Balance().AddToBalance(t.Context(), uuid.New(), "USD", decimal.NewFromInt(1))

					require.ErrorIs(t, err, apperrors.ErrBalanceNotFound)
				})
			})
		})
	})
}
