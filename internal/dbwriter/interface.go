package dbwriter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/your-org/signal-trader/internal/alert"
)

// EventRow is one row of the trade_events table.
type EventRow struct {
	Time     time.Time `db:"time"`
	EventID  string    `db:"event_id"`
	TenantID string    `db:"tenant_id"`
	Kind     string    `db:"kind"`
	Symbol   string    `db:"symbol"`
	Side     string    `db:"side"`
	Payload  string    `db:"payload"` // JSON
}

// PnLRow is one row of the pnl_reports table.
type PnLRow struct {
	Time      time.Time `db:"time"`
	TenantID  string    `db:"tenant_id"`
	Symbol    string    `db:"symbol"`
	Side      string    `db:"side"`
	PnLUSDT   float64   `db:"pnl_usdt"`
	PnLPct    float64   `db:"pnl_pct"`
	HoldingMs int64     `db:"holding_ms"`
	Source    string    `db:"source"`
}

// Journal records emitted trading events. Every implementation is also an
// alert.Sink so it can sit in the notification fan-out.
type Journal interface {
	alert.Sink
	SaveEvent(row EventRow)
	SavePnLReport(ctx context.Context, row PnLRow) error
	Close()
}

// EventRowFrom flattens an event into its journal row.
func EventRowFrom(ev alert.Event) (EventRow, error) {
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("failed to encode %s payload: %w", ev.Kind, err)
	}
	sub := ev.Subject()
	return EventRow{
		Time:     ev.PublishedAt,
		EventID:  ev.ID,
		TenantID: ev.TenantID,
		Kind:     string(ev.Kind),
		Symbol:   sub.Symbol,
		Side:     sub.Side,
		Payload:  string(body),
	}, nil
}

// PnLRowFrom converts a PnL report payload into its journal row.
func PnLRowFrom(tenantID string, p *alert.PnLReportPayload) PnLRow {
	at := time.Now().UTC()
	if p.TimeMs > 0 {
		at = time.UnixMilli(p.TimeMs).UTC()
	}
	return PnLRow{
		Time:      at,
		TenantID:  tenantID,
		Symbol:    p.Symbol,
		Side:      p.Side,
		PnLUSDT:   p.PnLUSDT,
		PnLPct:    p.PnLPct,
		HoldingMs: p.HoldingMs,
		Source:    p.Source,
	}
}
