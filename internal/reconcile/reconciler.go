// Package reconcile keeps the position table in step with the exchange.
package reconcile

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/exchange/okx"
	"github.com/your-org/signal-trader/internal/metrics"
	"github.com/your-org/signal-trader/internal/pnl"
	"github.com/your-org/signal-trader/internal/position"
	"github.com/your-org/signal-trader/internal/signal"
	"github.com/your-org/signal-trader/pkg/precision"
)

// PositionLister reads the open positions of the account.
type PositionLister interface {
	Positions(ctx context.Context, filter okx.PositionsFilter) ([]okx.PositionRow, error)
}

// Reporter computes the PnL of a closed position.
type Reporter interface {
	Report(ctx context.Context, p position.Position) (pnl.Report, error)
}

// Reconciler polls open positions, marks fills and reports closures.
type Reconciler struct {
	exchange PositionLister
	table    *position.Table
	reporter Reporter
	sink     alert.Sink
	tenantID string
	interval time.Duration
	logger   *zap.Logger

	baseline     chan struct{}
	baselineOnce sync.Once
}

// New creates a Reconciler that polls every interval.
func New(exchange PositionLister, table *position.Table, reporter Reporter, sink alert.Sink, tenantID string, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reconciler{
		exchange: exchange,
		table:    table,
		reporter: reporter,
		sink:     sink,
		tenantID: tenantID,
		interval: interval,
		logger:   logger.Named("reconcile"),
		baseline: make(chan struct{}),
	}
}

// Baseline is closed once the first reconciliation attempt has finished,
// successful or not.
func (r *Reconciler) Baseline() <-chan struct{} {
	return r.baseline
}

// Run reconciles until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Sync(ctx); err != nil && !errors.Is(err, okx.ErrStopped) {
			r.logger.Warn("reconciliation failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sync runs one reconciliation pass. Every open exchange position whose
// symbol is in the instrument catalogue is tracked, so positions opened
// before start-up are already in position when Baseline closes. A failed or
// unreadable poll leaves the table untouched.
func (r *Reconciler) Sync(ctx context.Context) error {
	defer r.baselineOnce.Do(func() { close(r.baseline) })

	rows, err := r.exchange.Positions(ctx, okx.PositionsFilter{InstType: "SWAP"})
	if err != nil {
		metrics.ReconcileCycles.WithLabelValues("error").Inc()
		return err
	}

	active := make(map[position.Key]position.Fill)
	for _, row := range rows {
		contracts := parseFloat(row.Pos)
		if contracts == 0 {
			continue
		}
		side := signal.ParseSide(row.Side())
		if side == signal.SideNone {
			continue
		}
		sym := row.Symbol()
		if _, err := r.table.Spec(sym); err != nil {
			r.logger.Debug("ignoring position outside the catalogue", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if contracts < 0 {
			contracts = -contracts
		}
		lev, _ := strconv.ParseFloat(row.Lever, 64)
		ctime, _ := strconv.ParseInt(row.CTime, 10, 64)
		active[position.Key{Symbol: sym, Side: side}] = position.Fill{
			EntryPrice:   parseFloat(row.AvgPx),
			Contracts:    contracts,
			NotionalUSDT: parseFloat(row.NotionalUsd),
			Leverage:     int(lev),
			TradeID:      row.TradeID,
			CTimeMs:      ctime,
		}
	}

	tracked := make(map[string]bool)
	for _, s := range r.table.TrackedSymbols() {
		tracked[s] = true
	}

	for k, fill := range active {
		r.applyFill(k, fill)
	}

	for _, k := range r.table.Keys() {
		if !tracked[k.Symbol] {
			continue
		}
		if _, ok := active[k]; ok {
			continue
		}
		before, closed := r.table.CloseIfOpen(k)
		if !closed {
			continue
		}
		r.logger.Info("position closed", zap.String("key", k.String()))
		r.report(ctx, before)
	}

	metrics.ReconcileCycles.WithLabelValues("ok").Inc()
	metrics.PositionsOpen.Set(float64(r.table.OpenCount()))
	return nil
}

func (r *Reconciler) applyFill(k position.Key, fill position.Fill) {
	spec, err := r.table.Spec(k.Symbol)
	if err != nil {
		r.logger.Warn("no spec for open position", zap.String("key", k.String()), zap.Error(err))
		return
	}
	p, first := r.table.ApplyFill(k, fill, spec.CtVal)
	if !first {
		return
	}
	r.logger.Info("position filled", zap.Stringer("position", p))
	r.sink.Publish(r.tenantID, alert.KindOrderFilled, &alert.OrderFilledPayload{
		Subject:      alert.Subject{Symbol: p.Symbol, Side: p.Side, TimeMs: time.Now().UnixMilli()},
		MarginVol:    precision.Round(p.MarginVol, 2),
		NotionalUSDT: precision.Round(p.NotionalUSDT, 2),
		AssetVol:     p.AssetVol,
	})
}

func (r *Reconciler) report(ctx context.Context, p position.Position) {
	rep, err := r.reporter.Report(ctx, p)
	if err != nil {
		r.logger.Warn("pnl report failed", zap.String("symbol", p.Symbol), zap.String("side", p.Side), zap.Error(err))
		return
	}
	r.sink.Publish(r.tenantID, alert.KindPnLReport, &alert.PnLReportPayload{
		Subject:    alert.Subject{Symbol: rep.Symbol, Side: rep.Side, TimeMs: rep.ClosedAtMs},
		PnLUSDT:    rep.PnLUSDT,
		PnLPct:     rep.PnLPct,
		HoldingMs:  rep.HoldingMs,
		TimeInDeal: rep.HoldingDuration,
		Source:     rep.Source,
	})
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
