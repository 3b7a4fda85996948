package main

import (
	"context"
	"fmt"
	"log/slog"

	"piivault/internal/audit"
	"piivault/internal/audit/outbox"
	auditstore "piivault/internal/audit/store"
	consentservice "piivault/internal/consent/service"
	consentstore "piivault/internal/consent/store"
	gdprservice "piivault/internal/gdpr/service"
	"piivault/internal/platform/config"
	"piivault/internal/platform/database"
	userservice "piivault/internal/users/service"
	userstore "piivault/internal/users/store"
	"piivault/pkg/platform/tx"
)

// userStore is satisfied by both user record store backends.
type userStore interface {
	userservice.Store
	gdprservice.UserStore
}

// backend is the storage selected at startup: postgres when DATABASE_URL is
// set, otherwise the in-memory stores.
type backend struct {
	name     string
	pool     *database.Pool
	users    userStore
	consents consentservice.Store
	events   audit.Store
	outbox   outbox.Store
	tx       tx.Manager
}

func newBackend(ctx context.Context, cfg *config.Config, log *slog.Logger, txMetrics *tx.Metrics) (*backend, error) {
	pool, err := database.New(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if pool == nil {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("DATABASE_URL is required outside development")
		}
		log.Warn("DATABASE_URL not set, using in-memory stores")
		users := userstore.NewInMemory()
		return &backend{
			name:     "memory",
			users:    users,
			consents: consentstore.NewInMemory(),
			events:   auditstore.NewInMemory(auditstore.WithPurgedLookup(users)),
			tx:       tx.NewInMemory(tx.WithMetrics(txMetrics)),
		}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(pool.DB()); err != nil {
			pool.Close() //nolint:errcheck // best-effort cleanup on init failure
			return nil, err
		}
		log.Info("database migrations applied")
	}

	db := pool.DB()
	ob := outbox.NewPostgres(db)
	return &backend{
		name:     "postgres",
		pool:     pool,
		users:    userstore.NewPostgres(db),
		consents: consentstore.NewPostgres(db),
		events:   auditstore.NewPostgres(db, ob),
		outbox:   ob,
		tx:       tx.NewPostgres(db, tx.WithMetrics(txMetrics)),
	}, nil
}

func (b *backend) Close() error {
	return b.pool.Close()
}
