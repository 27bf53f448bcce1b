package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/echobox/internal/adapter/postgres"
	"github.com/Strob0t/echobox/internal/adapter/sqlite"
	"github.com/Strob0t/echobox/internal/config"
	"github.com/Strob0t/echobox/internal/port/database"
)

// backend bundles the configured store with its migration controls.
type backend struct {
	name     string
	store    database.Store
	admin    database.ChannelAdmin
	migrate  func(ctx context.Context) error
	rollback func(ctx context.Context, steps int) error
	version  func(ctx context.Context) (int64, error)
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected")
		store := postgres.NewStore(pool)
		dsn := cfg.Postgres.DSN
		return &backend{
			name:     "postgres",
			store:    store,
			admin:    store,
			migrate:  func(ctx context.Context) error { return postgres.RunMigrations(ctx, dsn) },
			rollback: func(ctx context.Context, steps int) error { return postgres.RollbackMigrations(ctx, dsn, steps) },
			version:  func(ctx context.Context) (int64, error) { return postgres.MigrationVersion(ctx, dsn) },
			close:    pool.Close,
		}, nil

	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		slog.Info("sqlite opened", "path", cfg.Store.SQLitePath)
		return &backend{
			name:     "sqlite",
			store:    store,
			admin:    store,
			migrate:  store.Migrate,
			rollback: store.Rollback,
			version:  store.Version,
			close:    func() { _ = store.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
