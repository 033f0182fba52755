package dbwriter

import (
	"context"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
)

// dummyWriter is a no-op Journal used when no database is configured.
type dummyWriter struct {
	logger *zap.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l *zap.Logger) Journal {
	l.Info("Creating dummy journal writer because no database is configured.")
	return &dummyWriter{logger: l}
}

// Publish does nothing.
func (d *dummyWriter) Publish(tenantID string, kind alert.Kind, _ alert.Payload) {
	d.logger.Debug("Dummy writer: Publish called", zap.String("tenant", tenantID), zap.String("kind", string(kind)))
}

// SaveEvent does nothing.
func (d *dummyWriter) SaveEvent(EventRow) {}

// SavePnLReport does nothing and returns nil.
func (d *dummyWriter) SavePnLReport(_ context.Context, row PnLRow) error {
	d.logger.Debug("Dummy writer: SavePnLReport called", zap.String("symbol", row.Symbol))
	return nil
}

// Close does nothing.
func (d *dummyWriter) Close() {
	d.logger.Debug("Dummy writer: Close called")
}
