package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/shermatov/cargomart/internal/db"
	"github.com/shermatov/cargomart/internal/logger"
	"github.com/shermatov/cargomart/internal/repository"
	"github.com/shermatov/cargomart/internal/repository/postgres"
	"github.com/shermatov/cargomart/internal/service/converter"
	"github.com/shermatov/cargomart/internal/service/discount"
	"github.com/shermatov/cargomart/internal/service/promocode"
	"github.com/shermatov/cargomart/internal/service/settlement"
	"github.com/shermatov/cargomart/internal/service/status"
)

// App wires the settlement core and keeps the periodically refreshed
// snapshots (currency rates, status graph) external callers read from.
type App struct {
	Storage    repository.Storage
	Settlement *settlement.Service
	Discounts  *discount.Service
	PromoCodes *promocode.Service
	Engine     *status.Engine

	logger   logger.Logger
	pool     *pgxpool.Pool
	cron     *cron.Cron
	snapshot atomic.Pointer[converter.Snapshot]
	graph    atomic.Pointer[status.Graph]
}

func NewApp(ctx context.Context, c *Config) (*App, error) {
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	storage := postgres.NewStorage(pool)

	app := &App{
		Storage:    storage,
		Settlement: settlement.NewService(storage, log),
		Discounts:  discount.NewService(storage),
		PromoCodes: promocode.NewService(storage, log),
		Engine:     status.NewEngine(storage, log),
		logger:     log,
		pool:       pool,
	}

	if err := app.Refresh(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while loading initial snapshots: %w", err)
	}

	app.cron = cron.New()
	_, err = app.cron.AddFunc(c.RefreshSpec, func() {
		if err := app.Refresh(context.Background()); err != nil {
			log.Error("snapshot refresh failed", "error", err.Error())
		}
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while scheduling refresh %q: %w", c.RefreshSpec, err)
	}

	return app, nil
}

// Refresh reloads the currency rate snapshot and the status graph. Both are
// swapped atomically, readers always see a complete snapshot.
func (a *App) Refresh(ctx context.Context) error {
	snapshot, err := converter.Load(ctx, a.Storage.Currency())
	if err != nil {
		return err
	}

	graph, err := status.LoadGraph(ctx, a.Storage.Status())
	if err != nil {
		return err
	}

	a.snapshot.Store(snapshot)
	a.graph.Store(graph)
	a.logger.Debug("snapshots refreshed")
	return nil
}

// Rates is the currently loaded currency rate snapshot.
func (a *App) Rates() *converter.Snapshot {
	return a.snapshot.Load()
}

// Graph is the currently loaded status graph.
func (a *App) Graph() *status.Graph {
	return a.graph.Load()
}

// Run blocks until the context is cancelled, then shuts down cleanly.
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()
	a.logger.Info("settlement core started")

	<-ctx.Done()

	stopCtx := a.cron.Stop()
	<-stopCtx.Done()

	a.pool.Close()
	a.logger.Info("settlement core stopped")
	return nil
}
