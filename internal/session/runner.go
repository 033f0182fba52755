package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/config"
	"github.com/your-org/signal-trader/internal/engine"
	"github.com/your-org/signal-trader/internal/exchange/okx"
	"github.com/your-org/signal-trader/internal/pnl"
	"github.com/your-org/signal-trader/internal/reconcile"
	"github.com/your-org/signal-trader/internal/signal"
)

const (
	instTypeSwap = "SWAP"
	hedgeMode    = "long_short_mode"
)

var (
	// ErrNoTenant means no tenant is configured.
	ErrNoTenant = errors.New("no tenant configured")
	// ErrMissingCredentials means the active tenant has incomplete API credentials.
	ErrMissingCredentials = errors.New("exchange credentials are incomplete")
)

// Exchange is everything one iteration needs from OKX.
type Exchange interface {
	engine.Exchange
	reconcile.PositionLister
	pnl.HistoryFetcher
	pnl.PriceFetcher
	Instruments(ctx context.Context, instType string) ([]okx.Instrument, error)
	Tickers(ctx context.Context, instType string) (map[string]float64, error)
	SetPositionMode(ctx context.Context, mode string) error
	ServerTime(ctx context.Context) (int64, error)
}

// ExchangeFactory builds a client for a tenant's credentials.
type ExchangeFactory func(creds config.Credentials) Exchange

// FeedFactory starts an optional price feed for the given symbols. It runs
// until ctx is cancelled.
type FeedFactory func(ctx context.Context, symbols []string, sink okx.PriceSink)

// Runner executes trading iterations until the process stops.
type Runner struct {
	state       *State
	control     *Control
	sink        alert.Sink
	newExchange ExchangeFactory
	feed        FeedFactory
	logger      *zap.Logger
}

// NewRunner creates a Runner. feed may be nil.
func NewRunner(state *State, control *Control, sink alert.Sink, newExchange ExchangeFactory, feed FeedFactory) *Runner {
	return &Runner{
		state:       state,
		control:     control,
		sink:        sink,
		newExchange: newExchange,
		feed:        feed,
		logger:      state.Logger.Named("session"),
	}
}

// Run waits for a start request (or starts immediately when auto start is
// configured), runs an iteration until it is soft-stopped, and repeats until
// ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	autoStart := bool(r.state.Config.Timing.AutoStart)
	for {
		if !autoStart {
			r.logger.Info("waiting for start")
			select {
			case <-ctx.Done():
				return nil
			case <-r.control.start:
			}
		}
		autoStart = false

		iterCtx, cancel := context.WithCancel(ctx)
		r.control.setRunning(true)
		go func() {
			select {
			case <-r.control.stop:
				r.logger.Info("soft stop requested")
				cancel()
			case <-iterCtx.Done():
			}
		}()

		if err := r.Iterate(iterCtx); err != nil && !errors.Is(err, okx.ErrStopped) {
			r.logger.Error("iteration failed", zap.Error(err))
		}
		cancel()
		r.control.setRunning(false)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Iterate runs one trading iteration for the first active tenant and blocks
// until ctx is cancelled. Per-iteration state is reset on return.
func (r *Runner) Iterate(ctx context.Context) error {
	defer r.state.reset()

	active := r.state.Store.Active()
	if len(active) == 0 {
		return ErrNoTenant
	}
	tenant := active[0]
	if ids := r.state.Store.TenantIDs(); len(ids) > config.MaxActiveTenants {
		r.logger.Warn("only the first tenant trades", zap.Strings("ignored", ids[config.MaxActiveTenants:]))
	}
	if !tenant.Credentials.Complete() {
		return fmt.Errorf("tenant %s: %w", tenant.ID, ErrMissingCredentials)
	}

	log := r.logger.With(zap.String("tenant", tenant.ID))
	ex := r.newExchange(tenant.Credentials)

	instruments, err := ex.Instruments(ctx, instTypeSwap)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	r.state.Table.LoadInstruments(instruments)

	tickers, err := ex.Tickers(ctx, instTypeSwap)
	if err != nil {
		return fmt.Errorf("load tickers: %w", err)
	}
	r.state.Prices.Load(tickers)

	if err := ex.SetPositionMode(ctx, hedgeMode); err != nil {
		if errors.Is(err, okx.ErrStopped) {
			return err
		}
		log.Warn("set position mode failed", zap.Error(err))
	}
	log.Info("iteration started", zap.Int("instruments", len(instruments)), zap.Int("prices", r.state.Prices.Len()))

	cfg := r.state.Config
	reporter := pnl.NewFromStrategy(cfg.PnL.Strategy, ex, cfg.PnL.SlippagePct, r.state.Logger)
	rec := reconcile.New(ex, r.state.Table, reporter, r.sink, tenant.ID, cfg.Timing.PositionsUpdateInterval, r.state.Logger)

	eng := engine.NewLiveExecutionEngine(ex, r.state.Table, r.state.Dedup, r.state.Prices, r.sink, r.state.Store, tenant.ID, r.state.Logger,
		engine.WithBaseline(rec.Baseline()),
		engine.WithPollInterval(cfg.Timing.WatchdogPollInterval),
		engine.WithVolumeRate(cfg.Signal.VolumeRate),
	)
	ingestor := signal.NewIngestor(r.state.Window, r.state.Dedup, r.state.Logger,
		signal.WithBlacklist(config.NewBlacklist(cfg.Signal.Blacklist)),
		signal.WithProcessingLimit(cfg.Signal.ProcessingLimit),
	)
	dispatcher := engine.NewDispatcher(ingestor, eng, r.state.Store, tenant.ID, cfg.Timing.MainCycleInterval, r.state.Logger)

	var wg sync.WaitGroup
	r.safeGo(&wg, "reconcile", func() { rec.Run(ctx) })
	r.safeGo(&wg, "dispatch", func() { dispatcher.Run(ctx) })
	r.safeGo(&wg, "keepalive", func() { r.keepalive(ctx, ex) })
	if r.feed != nil {
		symbols := make([]string, 0, len(instruments))
		for _, in := range instruments {
			symbols = append(symbols, in.InstID)
		}
		r.safeGo(&wg, "ticker-feed", func() { r.feed(ctx, symbols, r.state.Prices) })
	}

	<-ctx.Done()
	wg.Wait()
	log.Info("iteration stopped", zap.Int("open_positions", r.state.Table.OpenCount()))
	return nil
}

func (r *Runner) safeGo(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("recovered panic", zap.String("task", name), zap.Any("panic", p), zap.Stack("stack"))
			}
		}()
		fn()
	}()
}

// keepalive pings the server clock so connectivity loss shows up in the logs.
func (r *Runner) keepalive(ctx context.Context, ex Exchange) {
	interval := r.state.Config.Timing.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts, err := ex.ServerTime(ctx)
			if err != nil {
				if !errors.Is(err, okx.ErrStopped) {
					r.logger.Warn("keepalive ping failed", zap.Error(err))
				}
				continue
			}
			r.logger.Debug("keepalive", zap.Duration("clock_skew", time.Since(time.UnixMilli(ts))))
		}
	}
}
