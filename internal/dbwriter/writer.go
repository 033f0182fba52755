package dbwriter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/config"
)

const pnlInsertTimeout = 5 * time.Second

var eventColumns = []string{"time", "event_id", "tenant_id", "kind", "symbol", "side", "payload"}

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Close()
}

// PostgresWriter journals events to Postgres. Events are buffered and
// copied in batches; PnL reports are inserted immediately.
type PostgresWriter struct {
	pool         Pool
	logger       *zap.Logger
	config       config.DBWriterConfig
	eventBuffer  []EventRow
	bufferMutex  sync.Mutex
	flushTicker  *time.Ticker
	shutdownChan chan struct{}
	closeOnce    sync.Once
}

// NewPostgresWriter creates a PostgresWriter on an existing pool and starts
// its background flusher.
func NewPostgresWriter(pool Pool, writerConfig config.DBWriterConfig, logger *zap.Logger) (*PostgresWriter, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres writer needs a connection pool")
	}
	if writerConfig.WriteIntervalSeconds <= 0 {
		logger.Warn("WriteIntervalSeconds is zero or negative, defaulting to 1s.", zap.Int("originalValue", writerConfig.WriteIntervalSeconds))
		writerConfig.WriteIntervalSeconds = 1
	}
	if writerConfig.BatchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, defaulting to 100.", zap.Int("originalValue", writerConfig.BatchSize))
		writerConfig.BatchSize = 100
	}

	w := &PostgresWriter{
		pool:         pool,
		logger:       logger.Named("journal"),
		config:       writerConfig,
		eventBuffer:  make([]EventRow, 0, writerConfig.BatchSize),
		flushTicker:  time.NewTicker(time.Duration(writerConfig.WriteIntervalSeconds) * time.Second),
		shutdownChan: make(chan struct{}),
	}
	go w.run()
	w.logger.Info("Started event journal writer", zap.Int("batchSize", writerConfig.BatchSize))
	return w, nil
}

// Close flushes the buffer and closes the connection pool.
func (w *PostgresWriter) Close() {
	w.closeOnce.Do(func() {
		w.logger.Info("Closing event journal writer...")
		close(w.shutdownChan)
		w.flushTicker.Stop()
		w.flush()
		w.pool.Close()
	})
}

func (w *PostgresWriter) run() {
	for {
		select {
		case <-w.flushTicker.C:
			w.flush()
		case <-w.shutdownChan:
			return
		}
	}
}

// Publish implements alert.Sink.
func (w *PostgresWriter) Publish(tenantID string, kind alert.Kind, payload alert.Payload) {
	row, err := EventRowFrom(alert.NewEvent(tenantID, kind, payload))
	if err != nil {
		w.logger.Error("Failed to build journal row", zap.Error(err))
		return
	}
	w.SaveEvent(row)

	if p, ok := payload.(*alert.PnLReportPayload); ok {
		ctx, cancel := context.WithTimeout(context.Background(), pnlInsertTimeout)
		defer cancel()
		_ = w.SavePnLReport(ctx, PnLRowFrom(tenantID, p))
	}
}

// SaveEvent adds an event row to the buffer.
func (w *PostgresWriter) SaveEvent(row EventRow) {
	w.bufferMutex.Lock()
	w.eventBuffer = append(w.eventBuffer, row)
	shouldFlush := len(w.eventBuffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *PostgresWriter) flush() {
	w.bufferMutex.Lock()
	defer w.bufferMutex.Unlock()
	if len(w.eventBuffer) == 0 {
		return
	}
	w.batchInsertEvents(context.Background(), w.eventBuffer)
	w.eventBuffer = w.eventBuffer[:0]
}

func (w *PostgresWriter) batchInsertEvents(ctx context.Context, rows []EventRow) {
	w.logger.Debug("Flushing journal events", zap.Int("count", len(rows)))
	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"trade_events"},
		eventColumns,
		pgx.CopyFromRows(toEventInterfaces(rows)),
	)
	if err != nil {
		w.logger.Error("Failed to batch insert journal events", zap.Error(err), zap.Int("count", len(rows)))
	}
}

func toEventInterfaces(rows []EventRow) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.Time, r.EventID, r.TenantID, r.Kind, r.Symbol, r.Side, r.Payload}
	}
	return out
}

// SavePnLReport inserts a single PnL report.
func (w *PostgresWriter) SavePnLReport(ctx context.Context, row PnLRow) error {
	query := `INSERT INTO pnl_reports (time, tenant_id, symbol, side, pnl_usdt, pnl_pct, holding_ms, source)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := w.pool.Exec(ctx, query,
		row.Time, row.TenantID, row.Symbol, row.Side,
		row.PnLUSDT, row.PnLPct, row.HoldingMs, row.Source,
	)
	if err != nil {
		w.logger.Error("Failed to insert PnL report", zap.Error(err), zap.Any("report", row))
		return fmt.Errorf("failed to insert PnL report: %w", err)
	}
	w.logger.Debug("Saved PnL report to DB.", zap.String("symbol", row.Symbol), zap.String("side", row.Side))
	return nil
}
