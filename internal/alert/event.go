// Package alert defines the trading events emitted by the engine and the
// sinks that deliver them.
package alert

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the category of an event.
type Kind string

const (
	KindSignal      Kind = "signal"
	KindOrderSent   Kind = "order-sent"
	KindOrderFailed Kind = "order-failed"
	KindOrderFilled Kind = "order-filled"
	KindPnLReport   Kind = "pnl-report"
)

// ReasonTimeout is the failure reason of a limit order that was not filled in time.
const ReasonTimeout = "TIME-OUT"

// Subject names the position an event is about.
type Subject struct {
	Symbol string `json:"symbol"`
	Side   string `json:"pos_side"`
	TimeMs int64  `json:"cur_time"`
}

func (s Subject) subject() Subject { return s }

// Payload is implemented by the event bodies of this package. Publishers
// pass pointers to them.
type Payload interface {
	subject() Subject
}

// SignalPayload is published when a signal passes the position guards.
type SignalPayload struct {
	Subject
	Leverage   int     `json:"leverage"`
	Entry      float64 `json:"entry_price"`
	TakeProfit float64 `json:"tp"`
	StopLoss   float64 `json:"sl"`
}

// OrderSentPayload is published when the exchange accepts an order.
type OrderSentPayload struct {
	Subject
	OrderKind string `json:"order_kind"`
	OrderID   string `json:"order_id"`
	ClOrdID   string `json:"cl_ord_id"`
	Contracts string `json:"contracts"`
	Price     string `json:"price,omitempty"`
}

// OrderFailedPayload is published when an order could not be placed or
// timed out.
type OrderFailedPayload struct {
	Subject
	OrderKind string `json:"order_kind"`
	Reason    string `json:"reason"`
}

// OrderFilledPayload is published the first time the exchange reports a
// position for a key.
type OrderFilledPayload struct {
	Subject
	MarginVol    float64 `json:"margin_vol"`
	NotionalUSDT float64 `json:"vol_usdt"`
	AssetVol     float64 `json:"vol_assets"`
}

// PnLReportPayload is published after a position closes.
type PnLReportPayload struct {
	Subject
	PnLUSDT    float64 `json:"pnl_usdt"`
	PnLPct     float64 `json:"pnl_pct"`
	HoldingMs  int64   `json:"holding_ms"`
	TimeInDeal string  `json:"time_in_deal"`
	Source     string  `json:"source"`
}

// SubjectOf returns the position an event payload refers to.
func SubjectOf(p Payload) Subject {
	if p == nil {
		return Subject{}
	}
	return p.subject()
}

// Event is a published payload with delivery metadata.
type Event struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Kind        Kind      `json:"kind"`
	PublishedAt time.Time `json:"published_at"`
	Payload     Payload   `json:"payload"`
}

// NewEvent stamps a payload with a fresh id and the current time.
func NewEvent(tenantID string, kind Kind, p Payload) Event {
	return Event{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Kind:        kind,
		PublishedAt: time.Now().UTC(),
		Payload:     p,
	}
}

// Subject returns the position the event refers to.
func (e Event) Subject() Subject {
	return SubjectOf(e.Payload)
}
