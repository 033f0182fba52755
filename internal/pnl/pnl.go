// Package pnl computes realized profit and loss for closed positions.
package pnl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/exchange/okx"
	"github.com/your-org/signal-trader/internal/position"
	"github.com/your-org/signal-trader/pkg/precision"
)

// Report sources.
const (
	SourceLedger = "ledger"
	SourceMark   = "mark"
)

var (
	// ErrNoLedgerRows means the exchange history has no row for the position yet.
	ErrNoLedgerRows = errors.New("no ledger rows for position")
	// ErrNoPrice means no mark price could be fetched.
	ErrNoPrice = errors.New("mark price unavailable")
	// ErrNoEntry means the closed position has no entry price.
	ErrNoEntry = errors.New("position has no entry price")
)

// Report is the PnL of one closed position.
type Report struct {
	Symbol          string
	Side            string
	PnLUSDT         float64
	PnLPct          float64
	HoldingMs       int64
	HoldingDuration string
	ClosedAtMs      int64
	Source          string
}

// Strategy computes the PnL of a position closed at closedAt.
type Strategy interface {
	Compute(ctx context.Context, p position.Position, closedAt time.Time) (Report, error)
}

// HistoryFetcher reads closed-position ledger rows.
type HistoryFetcher interface {
	PositionsHistory(ctx context.Context, filter okx.HistoryFilter) ([]okx.HistoryRow, error)
}

// PriceFetcher reads the last traded price of an instrument.
type PriceFetcher interface {
	Ticker(ctx context.Context, instID string) (float64, bool, error)
}

func newReport(p position.Position, closedAt time.Time, source string) Report {
	r := Report{
		Symbol:     p.Symbol,
		Side:       p.Side,
		ClosedAtMs: closedAt.UnixMilli(),
		Source:     source,
	}
	if p.CTimeMs > 0 {
		r.HoldingMs = r.ClosedAtMs - p.CTimeMs
	}
	r.HoldingDuration = precision.FormatDuration(r.HoldingMs)
	return r
}

// LedgerCalculator sums exchange ledger rows. It accounts for fees and
// funding and is the authoritative strategy.
type LedgerCalculator struct {
	history HistoryFetcher
}

// NewLedgerCalculator creates a LedgerCalculator.
func NewLedgerCalculator(history HistoryFetcher) *LedgerCalculator {
	return &LedgerCalculator{history: history}
}

// Compute sums realizedPnl+fee+fundingFee and pnlRatio*100 over rows of the
// same side updated at or after the position open time.
func (c *LedgerCalculator) Compute(ctx context.Context, p position.Position, closedAt time.Time) (Report, error) {
	rows, err := c.history.PositionsHistory(ctx, okx.HistoryFilter{InstID: p.Symbol})
	if err != nil {
		return Report{}, fmt.Errorf("positions history %s: %w", p.Symbol, err)
	}

	usd, pct := decimal.Zero, decimal.Zero
	matched := 0
	for _, row := range rows {
		if !strings.EqualFold(row.PosSide, p.Side) {
			continue
		}
		if uTime, _ := strconv.ParseInt(row.UTime, 10, 64); p.CTimeMs > 0 && uTime < p.CTimeMs {
			continue
		}
		usd = usd.Add(dec(row.RealizedPnl)).Add(dec(row.Fee)).Add(dec(row.FundingFee))
		pct = pct.Add(dec(row.PnlRatio).Mul(decimal.NewFromInt(100)))
		matched++
	}
	if matched == 0 {
		return Report{}, fmt.Errorf("%s %s: %w", p.Symbol, p.Side, ErrNoLedgerRows)
	}

	r := newReport(p, closedAt, SourceLedger)
	r.PnLUSDT = usd.Round(4).InexactFloat64()
	r.PnLPct = pct.Round(4).InexactFloat64()
	return r, nil
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MarkEstimator prices a closed position at the current mark adjusted for
// slippage. It ignores funding and fees.
type MarkEstimator struct {
	prices      PriceFetcher
	slippagePct float64
}

// NewMarkEstimator creates a MarkEstimator. slippagePct is in percent, e.g. 0.09.
func NewMarkEstimator(prices PriceFetcher, slippagePct float64) *MarkEstimator {
	return &MarkEstimator{prices: prices, slippagePct: slippagePct}
}

// ApplySlippage moves price against the position by slippagePct percent.
func ApplySlippage(price, slippagePct, sign float64) float64 {
	return price * (1 - sign*slippagePct/100)
}

// Compute estimates the PnL from the current mark price.
func (e *MarkEstimator) Compute(ctx context.Context, p position.Position, closedAt time.Time) (Report, error) {
	if p.EntryPrice <= 0 {
		return Report{}, fmt.Errorf("%s %s: %w", p.Symbol, p.Side, ErrNoEntry)
	}
	mark, ok, err := e.prices.Ticker(ctx, p.Symbol)
	if err != nil {
		return Report{}, fmt.Errorf("ticker %s: %w", p.Symbol, err)
	}
	if !ok || mark <= 0 {
		return Report{}, fmt.Errorf("%s: %w", p.Symbol, ErrNoPrice)
	}

	sign := p.Key().Side.Sign()
	lev := p.Leverage
	if lev <= 0 {
		lev = 1
	}
	adj := ApplySlippage(mark, e.slippagePct, sign)

	r := newReport(p, closedAt, SourceMark)
	r.PnLPct = precision.Round(sign*(adj-p.EntryPrice)/p.EntryPrice*100*float64(lev), 4)
	r.PnLUSDT = precision.Round(p.AssetVol*(adj-p.EntryPrice)*sign, 4)
	return r, nil
}

// Calculator runs the primary strategy and falls back to the secondary one
// when the primary fails.
type Calculator struct {
	primary  Strategy
	fallback Strategy
	now      func() time.Time
	logger   *zap.Logger
}

// NewCalculator creates a Calculator. fallback may be nil.
func NewCalculator(primary, fallback Strategy, logger *zap.Logger) *Calculator {
	return &Calculator{primary: primary, fallback: fallback, now: time.Now, logger: logger.Named("pnl")}
}

// NewFromStrategy builds the Calculator named by the configuration:
// "mark" uses the estimate only, anything else uses the ledger with the
// estimate as fallback.
func NewFromStrategy(name string, client interface {
	HistoryFetcher
	PriceFetcher
}, slippagePct float64, logger *zap.Logger) *Calculator {
	mark := NewMarkEstimator(client, slippagePct)
	if name == SourceMark {
		return NewCalculator(mark, nil, logger)
	}
	return NewCalculator(NewLedgerCalculator(client), mark, logger)
}

// Report computes the PnL of p closed now.
func (c *Calculator) Report(ctx context.Context, p position.Position) (Report, error) {
	closedAt := c.now()
	r, err := c.primary.Compute(ctx, p, closedAt)
	if err == nil {
		return r, nil
	}
	if c.fallback == nil || errors.Is(err, okx.ErrStopped) {
		return Report{}, err
	}
	c.logger.Warn("primary pnl strategy failed, using fallback",
		zap.String("symbol", p.Symbol), zap.String("side", p.Side), zap.Error(err))
	return c.fallback.Compute(ctx, p, closedAt)
}
