package pnl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/exchange/okx"
	"github.com/your-org/signal-trader/internal/position"
)

type fakeExchange struct {
	rows       []okx.HistoryRow
	historyErr error
	price      float64
	priceOK    bool
	priceErr   error
	filters    []okx.HistoryFilter
}

func (f *fakeExchange) PositionsHistory(_ context.Context, filter okx.HistoryFilter) ([]okx.HistoryRow, error) {
	f.filters = append(f.filters, filter)
	return f.rows, f.historyErr
}

func (f *fakeExchange) Ticker(context.Context, string) (float64, bool, error) {
	return f.price, f.priceOK, f.priceErr
}

var closedAt = time.UnixMilli(1_700_003_600_000)

func longPosition() position.Position {
	return position.Position{
		Symbol:     "BTC-USDT-SWAP",
		Side:       "LONG",
		Leverage:   10,
		EntryPrice: 50000,
		AssetVol:   0.02,
		CTimeMs:    1_700_000_000_000,
	}
}

func TestLedgerCalculator(t *testing.T) {
	ex := &fakeExchange{rows: []okx.HistoryRow{
		{PosSide: "long", RealizedPnl: "10.5", Fee: "-0.25", FundingFee: "-0.05", PnlRatio: "0.021", UTime: "1700003500000"},
		{PosSide: "long", RealizedPnl: "1", Fee: "-0.1", FundingFee: "0", PnlRatio: "0.002", UTime: "1700003550000"},
		{PosSide: "short", RealizedPnl: "100", PnlRatio: "1", UTime: "1700003500000"},
		{PosSide: "long", RealizedPnl: "100", PnlRatio: "1", UTime: "1699999999999"},
	}}

	r, err := NewLedgerCalculator(ex).Compute(context.Background(), longPosition(), closedAt)
	require.NoError(t, err)

	assert.Equal(t, 11.1, r.PnLUSDT)
	assert.Equal(t, 2.3, r.PnLPct)
	assert.Equal(t, SourceLedger, r.Source)
	assert.Equal(t, int64(3_600_000), r.HoldingMs)
	assert.Equal(t, "1h 0m", r.HoldingDuration)
	require.Len(t, ex.filters, 1)
	assert.Equal(t, "BTC-USDT-SWAP", ex.filters[0].InstID)
}

func TestLedgerCalculator_NoRows(t *testing.T) {
	ex := &fakeExchange{rows: []okx.HistoryRow{{PosSide: "short", RealizedPnl: "1", UTime: "1700003500000"}}}
	_, err := NewLedgerCalculator(ex).Compute(context.Background(), longPosition(), closedAt)
	assert.ErrorIs(t, err, ErrNoLedgerRows)
}

func TestMarkEstimator(t *testing.T) {
	t.Run("long", func(t *testing.T) {
		ex := &fakeExchange{price: 51000, priceOK: true}
		r, err := NewMarkEstimator(ex, 0).Compute(context.Background(), longPosition(), closedAt)
		require.NoError(t, err)
		assert.Equal(t, 20.0, r.PnLPct)
		assert.Equal(t, 20.0, r.PnLUSDT)
		assert.Equal(t, SourceMark, r.Source)
	})

	t.Run("short with slippage", func(t *testing.T) {
		ex := &fakeExchange{price: 49000, priceOK: true}
		p := longPosition()
		p.Side = "SHORT"
		p.Leverage = 1
		r, err := NewMarkEstimator(ex, 1).Compute(context.Background(), p, closedAt)
		require.NoError(t, err)
		// 49000 moved 1% against the short is 49490.
		assert.Equal(t, 1.02, r.PnLPct)
		assert.Equal(t, 10.2, r.PnLUSDT)
	})

	t.Run("no price", func(t *testing.T) {
		ex := &fakeExchange{}
		_, err := NewMarkEstimator(ex, 0).Compute(context.Background(), longPosition(), closedAt)
		assert.ErrorIs(t, err, ErrNoPrice)
	})

	t.Run("no entry", func(t *testing.T) {
		p := longPosition()
		p.EntryPrice = 0
		_, err := NewMarkEstimator(&fakeExchange{price: 1, priceOK: true}, 0).Compute(context.Background(), p, closedAt)
		assert.ErrorIs(t, err, ErrNoEntry)
	})
}

func TestApplySlippage(t *testing.T) {
	assert.InDelta(t, 99.91, ApplySlippage(100, 0.09, 1), 1e-9)
	assert.InDelta(t, 100.09, ApplySlippage(100, 0.09, -1), 1e-9)
}

func TestCalculator_Fallback(t *testing.T) {
	t.Run("ledger error falls back to mark", func(t *testing.T) {
		ex := &fakeExchange{historyErr: &okx.APIError{Code: "50001", Msg: "busy"}, price: 51000, priceOK: true}
		calc := NewFromStrategy("ledger", ex, 0, zap.NewNop())
		calc.now = func() time.Time { return closedAt }

		r, err := calc.Report(context.Background(), longPosition())
		require.NoError(t, err)
		assert.Equal(t, SourceMark, r.Source)
		assert.Equal(t, closedAt.UnixMilli(), r.ClosedAtMs)
	})

	t.Run("empty ledger falls back to mark", func(t *testing.T) {
		ex := &fakeExchange{price: 51000, priceOK: true}
		r, err := NewFromStrategy("ledger", ex, 0, zap.NewNop()).Report(context.Background(), longPosition())
		require.NoError(t, err)
		assert.Equal(t, SourceMark, r.Source)
	})

	t.Run("ledger success", func(t *testing.T) {
		ex := &fakeExchange{rows: []okx.HistoryRow{{PosSide: "long", RealizedPnl: "5", UTime: "1700003500000"}}}
		r, err := NewFromStrategy("ledger", ex, 0, zap.NewNop()).Report(context.Background(), longPosition())
		require.NoError(t, err)
		assert.Equal(t, SourceLedger, r.Source)
		assert.Equal(t, 5.0, r.PnLUSDT)
	})

	t.Run("stop is not masked", func(t *testing.T) {
		ex := &fakeExchange{historyErr: okx.ErrStopped, price: 51000, priceOK: true}
		_, err := NewFromStrategy("ledger", ex, 0, zap.NewNop()).Report(context.Background(), longPosition())
		assert.True(t, errors.Is(err, okx.ErrStopped))
	})

	t.Run("mark only", func(t *testing.T) {
		ex := &fakeExchange{}
		_, err := NewFromStrategy("mark", ex, 0, zap.NewNop()).Report(context.Background(), longPosition())
		assert.ErrorIs(t, err, ErrNoPrice)
	})
}
