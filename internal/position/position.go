// Package position keeps the local belief about per (symbol, side) positions.
package position

import (
	"errors"
	"fmt"

	"github.com/your-org/signal-trader/internal/signal"
)

var (
	// ErrInPosition is returned by Claim when the key already holds a position.
	ErrInPosition = errors.New("skip: in_position")
	// ErrPendingOpen is returned by Claim when an open is already in progress.
	ErrPendingOpen = errors.New("skip: pending_open")
	// ErrOrderOutstanding is returned when a second order id is recorded for a key.
	ErrOrderOutstanding = errors.New("order already outstanding")
)

// Key identifies a hedge-mode position.
type Key struct {
	Symbol string
	Side   signal.Side
}

func (k Key) String() string {
	return k.Symbol + "_" + k.Side.String()
}

// Position holds the state of one (symbol, side) entry.
type Position struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Leverage     int     `json:"leverage"`
	MarginVol    float64 `json:"margin_vol"`
	NotionalUSDT float64 `json:"vol_usdt"`
	AssetVol     float64 `json:"vol_assets"`
	EntryPrice   float64 `json:"entry_price"`
	PendingOpen  bool    `json:"pending_open"`
	InPosition   bool    `json:"in_position"`
	OrderID      string  `json:"order_id,omitempty"`
	TradeID      string  `json:"trade_id,omitempty"`
	CTimeMs      int64   `json:"c_time,omitempty"`
}

// template returns the reset state of a key.
func template(k Key) *Position {
	return &Position{Symbol: k.Symbol, Side: k.Side.String()}
}

// Key returns the table key of the position.
func (p Position) Key() Key {
	return Key{Symbol: p.Symbol, Side: signal.ParseSide(p.Side)}
}

// String returns a string representation of the position.
func (p Position) String() string {
	return fmt.Sprintf("Position{%s %s lev=%d entry=%v assets=%v pending=%t in=%t order=%q}",
		p.Symbol, p.Side, p.Leverage, p.EntryPrice, p.AssetVol, p.PendingOpen, p.InPosition, p.OrderID)
}

// Fill is the exchange view of an open position used by the reconciler.
type Fill struct {
	EntryPrice   float64
	Contracts    float64
	NotionalUSDT float64
	Leverage     int
	TradeID      string
	CTimeMs      int64
}
