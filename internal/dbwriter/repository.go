package dbwriter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/config"
)

// Connect opens a pool to the journal database, verifies it with a ping and
// brings the schema up to date.
func Connect(ctx context.Context, db config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	dsn := db.DSN()
	if err := Migrate(dsn, logger); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Connected to journal database", zap.String("host", db.Host), zap.String("database", db.Name))
	return pool, nil
}

// NewJournal returns a Postgres-backed journal when a database is
// configured and reachable, and a dummy journal otherwise.
func NewJournal(ctx context.Context, cfg *config.Config, logger *zap.Logger) Journal {
	if !cfg.Database.Enabled() {
		return NewDummyWriter(logger)
	}
	pool, err := Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("Journal database unavailable, events will not be persisted", zap.Error(err))
		return NewDummyWriter(logger)
	}
	w, err := NewPostgresWriter(pool, cfg.DBWriter, logger)
	if err != nil {
		pool.Close()
		return NewDummyWriter(logger)
	}
	return w
}
