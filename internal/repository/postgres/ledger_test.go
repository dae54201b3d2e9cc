package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
	"github.com/shermatov/cargomart/internal/testutil"
)

func makeEntry(t *testing.T, storage repository.Storage, mutate func(*repository.CreateEntryParams)) models.Transaction {
	t.Helper()

	params := repository.CreateEntryParams{
		UserID:           uuid.New(),
		Purpose:          models.PurposeOrderPayment,
		Type:             models.InstrumentCard,
		Amount:           decimal.RequireFromString("100.00"),
		Currency:         "USD",
		OriginalAmount:   decimal.RequireFromString("100.00"),
		OriginalCurrency: "USD",
	}
	if mutate != nil {
		mutate(&params)
	}

	entry, err := storage.Ledger().CreateEntry(t.Context(), params)
	require.NoError(t, err)
	return entry
}

func TestLedgerRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.WithTx(outerTx, t, func(innerTx pgx.Tx) {
			storage := NewStorage(innerTx)
			fn(innerTx, storage)
		})
	}

	t.Run("CreateEntry", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("generates invoice numbers", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					first := makeEntry(t, storage, nil)
					second := makeEntry(t, storage, nil)

					require.True(t, strings.HasPrefix(first.InvoiceNumber, "INV-"), "got %q", first.InvoiceNumber)
					require.True(t, strings.HasPrefix(second.InvoiceNumber, "INV-"))
					require.Greater(t, second.InvoiceNumber, first.InvoiceNumber, "serial must grow")
				})
			})

			t.Run("keeps the object reference", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					ref := models.PayableRef{Kind: models.KindOrder, ObjectID: uuid.New(), Identifier: "ORD-1"}
					entry := makeEntry(t, storage, func(p *repository.CreateEntryParams) {
						p.Object = ref
					})

					require.Equal(t, ref, entry.Ref())
				})
			})

			t.Run("rejects negative amount", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Ledger().CreateEntry(t.Context(), repository.CreateEntryParams{
						UserID:   uuid.New(),
						Purpose:  models.PurposeOrderPayment,
						Type:     models.InstrumentCard,
						Amount:   decimal.RequireFromString("-1.00"),
						Currency: "USD",
					})

					require.Error(t, err, "check constraint must reject negative amounts")
				})
			})
		})
	})

	t.Run("GetEntry", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("missing entry", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Ledger().GetEntry(t.Context(), uuid.New())

					require.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
				})
			})
		})
	})

	t.Run("LockEntries", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("skips soft deleted entries", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					kept := makeEntry(t, storage, nil)
					gone := makeEntry(t, storage, nil)
					require.NoError(t, storage.Ledger().SoftDeleteEntry(t.Context(), gone.ID, time.Now()))

					locked, err := storage.Ledger().LockEntries(t.Context(), []uuid.UUID{kept.ID, gone.ID})

					require.NoError(t, err)
					require.Len(t, locked, 1)
					require.Equal(t, kept.ID, locked[0].ID)
				})
			})
		})
	})

	t.Run("CompleteEntry", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("round trip with uncomplete", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					entry := makeEntry(t, storage, nil)

					done, err := storage.Ledger().CompleteEntry(t.Context(), entry.ID, time.Now(), models.InstrumentBalance, decimal.RequireFromString("80.00"), "USD")
					require.NoError(t, err)
					require.True(t, done.Completed)
					require.NotNil(t, done.CompletedAt)
					require.Equal(t, models.InstrumentBalance, done.Type)
					require.NotNil(t, done.DiscountedAmount)
					require.True(t, done.DiscountedAmount.Equal(decimal.RequireFromString("80.00")))

					back, err := storage.Ledger().UncompleteEntry(t.Context(), done.ID)
					require.NoError(t, err)
					require.False(t, back.Completed)
					require.Nil(t, back.CompletedAt)
				})
			})
		})
	})

	t.Run("CashbackChildrenSum", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("counts pending and completed, skips deleted", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					parent := makeEntry(t, storage, nil)

					cashback := func(amount string) models.Transaction {
						return makeEntry(t, storage, func(p *repository.CreateEntryParams) {
							p.Purpose = models.PurposeCashback
							p.Amount = decimal.RequireFromString(amount)
							p.OriginalAmount = p.Amount
							p.CashbackToID = &parent.ID
						})
					}

					cashback("5.00")
					cashback("10.00")
					deleted := cashback("50.00")
					require.NoError(t, storage.Ledger().SoftDeleteEntry(t.Context(), deleted.ID, time.Now()))

					sum, err := storage.Ledger().CashbackChildrenSum(t.Context(), parent.ID)

					require.NoError(t, err)
					require.True(t, sum.Equal(decimal.RequireFromString("15.00")), "got %s", sum)
				})
			})
		})
	})

	t.Run("CashbackAncestors", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("walks the chain upward", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					root := makeEntry(t, storage, nil)
					mid := makeEntry(t, storage, func(p *repository.CreateEntryParams) {
						p.Purpose = models.PurposeCashback
						p.CashbackToID = &root.ID
					})
					leaf := makeEntry(t, storage, func(p *repository.CreateEntryParams) {
						p.Purpose = models.PurposeCashback
						p.CashbackToID = &mid.ID
					})

					ancestors, err := storage.Ledger().CashbackAncestors(t.Context(), leaf.ID)

					require.NoError(t, err)
					require.ElementsMatch(t, []uuid.UUID{mid.ID, root.ID}, ancestors)
				})
			})
		})
	})

	t.Run("ForObject queries", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seedCurrencies(t, storage)

			t.Run("pending, partials and last completed", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					ref := models.PayableRef{Kind: models.KindShipment, ObjectID: uuid.New(), Identifier: "SHP-1"}

					pending := makeEntry(t, storage, func(p *repository.CreateEntryParams) { p.Object = ref })
					partial := makeEntry(t, storage, func(p *repository.CreateEntryParams) {
						p.Object = ref
						p.Extra = map[string]any{"partial": true}
					})
					full := makeEntry(t, storage, func(p *repository.CreateEntryParams) { p.Object = ref })

					_, err := storage.Ledger().CompleteEntry(t.Context(), partial.ID, time.Now().Add(-time.Minute), models.InstrumentCard, partial.Amount, partial.Currency)
					require.NoError(t, err)
					_, err = storage.Ledger().CompleteEntry(t.Context(), full.ID, time.Now(), models.InstrumentCard, full.Amount, full.Currency)
					require.NoError(t, err)

					got, err := storage.Ledger().PendingForObject(t.Context(), ref)
					require.NoError(t, err)
					require.Len(t, got, 1)
					require.Equal(t, pending.ID, got[0].ID)

					partials, err := storage.Ledger().CompletedPartialsForObject(t.Context(), ref)
					require.NoError(t, err)
					require.Len(t, partials, 1)
					require.Equal(t, partial.ID, partials[0].ID)

					last, err := storage.Ledger().LastCompletedForObject(t.Context(), ref)
					require.NoError(t, err)
					require.Equal(t, full.ID, last.ID, "most recent completed_at wins")
				})
			})

			t.Run("no completed entry", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					ref := models.PayableRef{Kind: models.KindShipment, ObjectID: uuid.New()}

					_, err := storage.Ledger().LastCompletedForObject(t.Context(), ref)

					require.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
				})
			})
		})
	})
}
