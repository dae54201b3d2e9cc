package postgres

import (
	"context"
	"fmt"

	"github.com/shermatov/cargomart/internal/repository"
)

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) Currency() repository.CurrencyRepo {
	return &CurrencyRepo{DB: s.db}
}

func (s *Storage) Balance() repository.BalanceRepo {
	return &BalanceRepo{DB: s.db}
}

func (s *Storage) Ledger() repository.LedgerRepo {
	return &LedgerRepo{DB: s.db}
}

func (s *Storage) Discount() repository.DiscountRepo {
	return &DiscountRepo{DB: s.db}
}

func (s *Storage) PromoCode() repository.PromoCodeRepo {
	return &PromoCodeRepo{DB: s.db}
}

func (s *Storage) Status() repository.StatusRepo {
	return &StatusRepo{DB: s.db}
}

func (s *Storage) Payable() repository.PayableRepo {
	return &PayableRepo{DB: s.db}
}

func (s *Storage) Config() repository.ConfigRepo {
	return &ConfigRepo{DB: s.db}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}
