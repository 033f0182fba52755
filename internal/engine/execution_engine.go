// Package engine turns trading intents into bracket orders and supervises
// them until they fill or time out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/config"
	"github.com/your-org/signal-trader/internal/exchange/okx"
	"github.com/your-org/signal-trader/internal/metrics"
	"github.com/your-org/signal-trader/internal/position"
	"github.com/your-org/signal-trader/internal/signal"
	"github.com/your-org/signal-trader/pkg/precision"
)

// Order kinds.
const (
	OrderKindLimit  = "limit"
	OrderKindMarket = "market"
)

const (
	// DefaultVolumeRate is the share of the margin committed per order, in percent.
	DefaultVolumeRate = 100
	// DefaultPollInterval is how often a watchdog checks for a fill.
	DefaultPollInterval = 100 * time.Millisecond

	triggerPxType  = "last"
	marketOnFill   = "-1"
	cancelDeadline = 10 * time.Second
)

var (
	// ErrInvalidContracts means the computed order size is not positive.
	ErrInvalidContracts = errors.New("invalid contracts calculated")
	// ErrOrderRejected means the exchange refused the order.
	ErrOrderRejected = errors.New("order rejected")
	// ErrMissingPrice means no mark price is cached for the symbol.
	ErrMissingPrice = errors.New("mark price not cached")
)

// Exchange is the part of the OKX client used to place, find and cancel orders.
type Exchange interface {
	SetLeverage(ctx context.Context, req okx.LeverageRequest) error
	PlaceOrder(ctx context.Context, req okx.OrderRequest) (*okx.OrderResult, error)
	OrderByClientID(ctx context.Context, instID, clOrdID string) (*okx.OrderDetail, error)
	CancelOrder(ctx context.Context, instID, ordID string) (*okx.OrderResult, error)
}

// PriceSource returns the cached mark price of a symbol.
type PriceSource interface {
	Price(symbol string) (float64, bool)
}

// TenantSource returns the live configuration of a tenant.
type TenantSource interface {
	Get(tenantID string) (config.Tenant, error)
}

// ExecutionEngine defines the interface for signal execution.
type ExecutionEngine interface {
	// Dispatch runs HandleSignal in its own goroutine.
	Dispatch(ctx context.Context, in signal.Intent)
	// HandleSignal executes one intent synchronously. Limit orders keep being
	// supervised in the background after it returns.
	HandleSignal(ctx context.Context, in signal.Intent) error
	// Wait blocks until every dispatched task and watchdog has finished.
	Wait()
}

// LiveExecutionEngine places real orders on the exchange.
type LiveExecutionEngine struct {
	exchange   Exchange
	table      *position.Table
	dedup      *signal.Deduper
	prices     PriceSource
	sink       alert.Sink
	tenants    TenantSource
	tenantID   string
	volumeRate float64
	poll       time.Duration
	baseline   <-chan struct{}
	now        func() time.Time
	newClOrdID func() string
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// Option customises a LiveExecutionEngine.
type Option func(*LiveExecutionEngine)

// WithBaseline makes the engine wait for ch to close before acting on a signal.
func WithBaseline(ch <-chan struct{}) Option {
	return func(e *LiveExecutionEngine) { e.baseline = ch }
}

// WithPollInterval sets the watchdog poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(e *LiveExecutionEngine) {
		if d > 0 {
			e.poll = d
		}
	}
}

// WithVolumeRate sets the share of the margin used per order, in percent.
func WithVolumeRate(r float64) Option {
	return func(e *LiveExecutionEngine) {
		if r > 0 {
			e.volumeRate = r
		}
	}
}

// WithClock overrides the wall clock used for order timeouts.
func WithClock(now func() time.Time) Option {
	return func(e *LiveExecutionEngine) { e.now = now }
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// NewLiveExecutionEngine creates a new LiveExecutionEngine for one tenant.
func NewLiveExecutionEngine(
	exchange Exchange,
	table *position.Table,
	dedup *signal.Deduper,
	prices PriceSource,
	sink alert.Sink,
	tenants TenantSource,
	tenantID string,
	logger *zap.Logger,
	opts ...Option,
) *LiveExecutionEngine {
	e := &LiveExecutionEngine{
		exchange:   exchange,
		table:      table,
		dedup:      dedup,
		prices:     prices,
		sink:       sink,
		tenants:    tenants,
		tenantID:   tenantID,
		volumeRate: DefaultVolumeRate,
		poll:       DefaultPollInterval,
		baseline:   closedChan(),
		now:        time.Now,
		newClOrdID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		logger:     logger.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch runs the intent in a new goroutine. A panic is logged and the
// intent's claim and dedup key are still released.
func (e *LiveExecutionEngine) Dispatch(ctx context.Context, in signal.Intent) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.recoverTask("execution", in)
		if err := e.HandleSignal(ctx, in); err != nil {
			e.logOutcome(in, err)
		}
	}()
}

// Wait blocks until every dispatched task and watchdog has finished.
func (e *LiveExecutionEngine) Wait() {
	e.wg.Wait()
}

func (e *LiveExecutionEngine) recoverTask(task string, in signal.Intent) {
	if r := recover(); r != nil {
		e.logger.Error("recovered panic",
			zap.String("task", task),
			zap.String("key", in.Key),
			zap.Any("panic", r),
			zap.Stack("stack"))
	}
}

func (e *LiveExecutionEngine) logOutcome(in signal.Intent, err error) {
	fields := []zap.Field{zap.String("symbol", in.Signal.Symbol), zap.Stringer("side", in.Signal.Side), zap.Error(err)}
	switch {
	case errors.Is(err, position.ErrInPosition), errors.Is(err, position.ErrPendingOpen):
		e.logger.Info("signal skipped", fields...)
	case errors.Is(err, okx.ErrStopped), errors.Is(err, context.Canceled):
		e.logger.Debug("signal abandoned on stop", fields...)
	default:
		e.logger.Warn("signal execution failed", fields...)
	}
}

// HandleSignal executes one intent: claim the key, size and place the
// bracket order, and hand limit orders to a watchdog. The claim and the
// dedup key are released on every path that does not start a watchdog.
func (e *LiveExecutionEngine) HandleSignal(ctx context.Context, in signal.Intent) error {
	sig := in.Signal
	key := position.Key{Symbol: sig.Symbol, Side: sig.Side}

	supervised := false
	defer func() {
		if !supervised {
			e.dedup.Release(in.Key)
		}
	}()

	tenant, err := e.tenants.Get(e.tenantID)
	if err != nil {
		return fmt.Errorf("tenant config: %w", err)
	}
	kind := OrderKindLimit
	if tenant.UseMarketOrder {
		kind = OrderKindMarket
	}

	spec, err := e.table.Spec(sig.Symbol)
	if err != nil {
		e.publishFailed(sig, kind, err.Error())
		return err
	}

	select {
	case <-e.baseline:
	case <-ctx.Done():
		return okx.ErrStopped
	}

	if err := e.table.Claim(key, tenant.MarginSize); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	defer func() {
		if !supervised {
			e.table.Release(key)
		}
	}()

	lev := tenant.Leverage
	if lev <= 0 {
		lev = sig.Leverage
	}
	if lev > spec.MaxLeverage {
		lev = spec.MaxLeverage
	}
	e.table.SetLeverage(key, lev)

	mark, ok := e.prices.Price(sig.Symbol)
	if !ok {
		e.publishFailed(sig, kind, fmt.Sprintf("[%s] %s", key, ErrMissingPrice))
		return fmt.Errorf("%s: %w", key, ErrMissingPrice)
	}
	entry := precision.FixPriceScale(sig.Entry, mark)
	tp := precision.FixPriceScale(sig.TakeProfit, mark)
	sl := precision.FixPriceScale(sig.StopLoss, mark)

	e.sink.Publish(e.tenantID, alert.KindSignal, &alert.SignalPayload{
		Subject:    subject(sig, sig.ArrivalMs),
		Leverage:   lev,
		Entry:      entry,
		TakeProfit: tp,
		StopLoss:   sl,
	})

	err = e.exchange.SetLeverage(ctx, okx.LeverageRequest{
		Lever:   strconv.Itoa(lev),
		InstID:  sig.Symbol,
		MgnMode: string(tenant.MarginMode),
		PosSide: sig.Side.PosSide(),
	})
	if errors.Is(err, okx.ErrStopped) {
		return err
	}
	if err != nil {
		e.logger.Warn("set leverage failed", zap.String("key", key.String()), zap.Int("leverage", lev), zap.Error(err))
	}

	contracts, err := precision.ContractSize(tenant.MarginSize, e.volumeRate, lev, entry, spec.CtVal, spec.LotSz, spec.ContractPrecision)
	if err != nil || !contracts.IsPositive() {
		reason := fmt.Sprintf("[%s] %s: %s", key, ErrInvalidContracts, contracts.String())
		e.publishFailed(sig, kind, reason)
		metrics.Orders.WithLabelValues(kind, "invalid").Inc()
		return fmt.Errorf("%s: %w", key, ErrInvalidContracts)
	}

	req := okx.OrderRequest{
		InstID:          sig.Symbol,
		TdMode:          string(tenant.MarginMode),
		Side:            sig.Side.OrderSide(),
		OrdType:         kind,
		Sz:              precision.Wire(contracts),
		PosSide:         sig.Side.PosSide(),
		ReduceOnly:      "false",
		TpTriggerPx:     precision.Wire(precision.RoundPrice(tp, spec.PricePrecision)),
		TpOrdPx:         marketOnFill,
		TpTriggerPxType: triggerPxType,
		SlTriggerPx:     precision.Wire(precision.RoundPrice(sl, spec.PricePrecision)),
		SlOrdPx:         marketOnFill,
		SlTriggerPxType: triggerPxType,
		ClOrdID:         e.newClOrdID(),
	}
	if kind == OrderKindLimit {
		req.Px = precision.Wire(precision.RoundPrice(entry, spec.PricePrecision))
	}

	e.logger.Info("placing order", zap.String("key", key.String()), zap.Any("request", req))
	res, err := e.exchange.PlaceOrder(ctx, req)
	if errors.Is(err, okx.ErrStopped) {
		return err
	}
	if !res.Accepted() && outcomeUnknown(res, err) {
		if adopted, ok := e.adoptOrder(ctx, key, req); ok {
			res, err = adopted, nil
		}
	}
	if err != nil || !res.Accepted() {
		reason := rejectReason(res, err)
		e.publishFailed(sig, kind, reason)
		metrics.Orders.WithLabelValues(kind, "rejected").Inc()
		return fmt.Errorf("%s: %w: %s", key, ErrOrderRejected, reason)
	}

	if err := e.table.SetOrderID(key, res.OrdID); err != nil {
		e.logger.Error("order id conflict, cancelling new order", zap.String("key", key.String()), zap.Error(err))
		e.cancel(ctx, key.Symbol, res.OrdID)
		return err
	}

	e.sink.Publish(e.tenantID, alert.KindOrderSent, &alert.OrderSentPayload{
		Subject:   subject(sig, e.orderTime(res)),
		OrderKind: kind,
		OrderID:   res.OrdID,
		ClOrdID:   req.ClOrdID,
		Contracts: req.Sz,
		Price:     req.Px,
	})
	metrics.Orders.WithLabelValues(kind, "sent").Inc()

	if kind == OrderKindMarket {
		// Market orders fill or fail immediately; nothing is left to cancel.
		e.table.ClearOrderID(key)
		return nil
	}

	supervised = true
	e.wg.Add(1)
	go e.watchdog(ctx, in, key, kind, tenant.OrderTimeout())
	return nil
}

// watchdog waits until the key is in position or the order timeout,
// measured from signal arrival, expires. On every exit it releases the
// dedup key, cancels any recorded order and drops the claim.
func (e *LiveExecutionEngine) watchdog(ctx context.Context, in signal.Intent, key position.Key, kind string, timeout time.Duration) {
	defer e.wg.Done()
	defer e.recoverTask("watchdog", in)

	log := e.logger.With(zap.String("key", key.String()))
	defer func() {
		e.dedup.Release(in.Key)
		if ordID := e.table.ClearOrderID(key); ordID != "" {
			e.cancel(ctx, key.Symbol, ordID)
		}
		e.table.Release(key)
	}()

	deadline := time.UnixMilli(in.Signal.ArrivalMs).Add(timeout)
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		if e.table.InPosition(key) {
			log.Info("order filled")
			return
		}
		if !e.now().Before(deadline) {
			log.Info("order timed out", zap.Duration("timeout", timeout))
			e.publishFailed(in.Signal, kind, alert.ReasonTimeout)
			metrics.Orders.WithLabelValues(kind, "timeout").Inc()
			return
		}
		select {
		case <-ctx.Done():
			log.Info("watchdog stopped")
			return
		case <-ticker.C:
		}
	}
}

// adoptOrder looks up an order whose place request has no reliable answer,
// such as a retry rejected for reusing its own clOrdId. A working or filled
// order is returned as if the request had been accepted.
func (e *LiveExecutionEngine) adoptOrder(ctx context.Context, key position.Key, req okx.OrderRequest) (*okx.OrderResult, bool) {
	log := e.logger.With(zap.String("key", key.String()), zap.String("clOrdId", req.ClOrdID))
	d, err := e.exchange.OrderByClientID(ctx, req.InstID, req.ClOrdID)
	if err != nil {
		log.Error("order lookup after ambiguous placement failed", zap.Error(err))
		return nil, false
	}
	if !d.Active() {
		log.Info("order from ambiguous placement is not working", zap.String("state", d.State))
		return nil, false
	}
	log.Warn("adopting order from ambiguous placement", zap.String("ordId", d.OrdID), zap.String("state", d.State))
	return &okx.OrderResult{OrdID: d.OrdID, ClOrdID: d.ClOrdID, SCode: "0", TS: d.CTime}, true
}

// cancel tries to cancel ordID. Failures, including an order that already
// filled, are logged and ignored. The request outlives a cancelled ctx.
func (e *LiveExecutionEngine) cancel(ctx context.Context, instID, ordID string) {
	cctx, done := context.WithTimeout(context.WithoutCancel(ctx), cancelDeadline)
	defer done()
	res, err := e.exchange.CancelOrder(cctx, instID, ordID)
	if err != nil {
		e.logger.Warn("cancel order failed", zap.String("symbol", instID), zap.String("ordId", ordID), zap.Error(err))
		return
	}
	e.logger.Info("order cancelled", zap.String("symbol", instID), zap.String("ordId", ordID), zap.String("sCode", res.SCode))
}

func (e *LiveExecutionEngine) publishFailed(sig signal.Signal, kind, reason string) {
	e.sink.Publish(e.tenantID, alert.KindOrderFailed, &alert.OrderFailedPayload{
		Subject:   subject(sig, e.now().UnixMilli()),
		OrderKind: kind,
		Reason:    reason,
	})
}

func (e *LiveExecutionEngine) orderTime(res *okx.OrderResult) int64 {
	if ts, err := strconv.ParseInt(res.TS, 10, 64); err == nil && ts > 0 {
		return ts
	}
	return e.now().UnixMilli()
}

func subject(sig signal.Signal, ms int64) alert.Subject {
	return alert.Subject{Symbol: sig.Symbol, Side: sig.Side.String(), TimeMs: ms}
}

// outcomeUnknown reports whether a failed place request may still have
// created the order on the exchange.
func outcomeUnknown(res *okx.OrderResult, err error) bool {
	if res != nil && res.SCode == okx.SCodeDuplicateClOrdID {
		return true
	}
	if err == nil {
		return false
	}
	_, isAPI := okx.IsAPIError(err)
	return !isAPI
}

func rejectReason(res *okx.OrderResult, err error) string {
	if res != nil && res.SMsg != "" {
		return res.SMsg
	}
	if apiErr, ok := okx.IsAPIError(err); ok && apiErr.Msg != "" {
		return apiErr.Msg
	}
	if err != nil {
		return err.Error()
	}
	return "no order id returned"
}
