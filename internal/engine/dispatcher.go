package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/signal"
)

// Scanner yields the intents that are ready to execute.
type Scanner interface {
	Scan(maxAge time.Duration) []signal.Intent
}

// Dispatcher periodically scans the message window and hands every new
// intent to the engine without waiting for it to finish.
type Dispatcher struct {
	scanner  Scanner
	engine   ExecutionEngine
	tenants  TenantSource
	tenantID string
	interval time.Duration
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher that scans every interval.
func NewDispatcher(scanner Scanner, engine ExecutionEngine, tenants TenantSource, tenantID string, interval time.Duration, logger *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		scanner:  scanner,
		engine:   engine,
		tenants:  tenants,
		tenantID: tenantID,
		interval: interval,
		logger:   logger.Named("dispatcher"),
	}
}

// Run scans until ctx is cancelled, then waits for dispatched work to wind down.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer d.engine.Wait()

	for {
		d.Tick(ctx)
		select {
		case <-ctx.Done():
			d.logger.Info("scan loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one scan and returns the number of dispatched intents.
func (d *Dispatcher) Tick(ctx context.Context) int {
	tenant, err := d.tenants.Get(d.tenantID)
	if err != nil {
		d.logger.Error("tenant lookup failed", zap.String("tenant", d.tenantID), zap.Error(err))
		return 0
	}
	intents := d.scanner.Scan(tenant.OrderTimeout())
	for _, in := range intents {
		d.logger.Info("dispatching signal", zap.String("key", in.Key), zap.Stringer("signal", in.Signal))
		d.engine.Dispatch(ctx, in)
	}
	return len(intents)
}
