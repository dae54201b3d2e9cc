package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shermatov/cargomart/internal/apperrors"
	"github.com/shermatov/cargomart/internal/models"
)

type ConfigRepo struct {
	DB DBTX
}

const activeConfig = `-- name: ActiveConfig
SELECT reporting_currency, promo_cashback_percent, promo_eligible_kinds FROM system_config
WHERE active
`

// ActiveConfig returns the settlement configuration snapshot.
// BaseCurrency is left empty here, the service layer fills it from the
// currency table so the primary currency can change without a data migration.
func (r *ConfigRepo) ActiveConfig(ctx context.Context) (models.SystemConfig, error) {
	var cfg models.SystemConfig
	var kinds []string

	err := r.DB.QueryRow(ctx, activeConfig).
		Scan(&cfg.ReportingCurrency, &cfg.PromoCashbackPercent, &kinds)

	switch {
	case err == nil:
		for _, k := range kinds {
			cfg.PromoEligibleKinds = append(cfg.PromoEligibleKinds, models.PayableKind(k))
		}
		return cfg, nil
	case errors.Is(err, pgx.ErrNoRows):
		return cfg, apperrors.ErrNoActiveConfig
	default:
		return cfg, fmt.Errorf("db error: %w", err)
	}
}

const deactivateConfigs = `-- name: DeactivateConfigs
UPDATE system_config SET active = false WHERE active
`

const insertConfig = `-- name: InsertConfig
INSERT INTO system_config (id, active, reporting_currency, promo_cashback_percent, promo_eligible_kinds)
VALUES ($1, $2, $3, $4, $5)
`

func (r *ConfigRepo) SaveConfig(ctx context.Context, cfg models.SystemConfig, active bool) error {
	if active {
		if _, err := r.DB.Exec(ctx, deactivateConfigs); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}

	kinds := make([]string, 0, len(cfg.PromoEligibleKinds))
	for _, k := range cfg.PromoEligibleKinds {
		kinds = append(kinds, string(k))
	}

	_, err := r.DB.Exec(ctx, insertConfig,
		uuid.New(), active, cfg.ReportingCurrency, cfg.PromoCashbackPercent, kinds)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
