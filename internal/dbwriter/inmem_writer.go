package dbwriter

import (
	"context"
	"sync"

	"github.com/your-org/signal-trader/internal/alert"
)

// InMemWriter is an in-memory Journal for tests and dry runs.
type InMemWriter struct {
	mu         sync.RWMutex
	Events     []EventRow
	PnLReports []PnLRow
	IsClosed   bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{
		Events:     make([]EventRow, 0),
		PnLReports: make([]PnLRow, 0),
	}
}

// Publish records the event and, for PnL reports, the report row.
func (w *InMemWriter) Publish(tenantID string, kind alert.Kind, payload alert.Payload) {
	row, err := EventRowFrom(alert.NewEvent(tenantID, kind, payload))
	if err != nil {
		return
	}
	w.SaveEvent(row)
	if p, ok := payload.(*alert.PnLReportPayload); ok {
		_ = w.SavePnLReport(context.Background(), PnLRowFrom(tenantID, p))
	}
}

// SaveEvent appends an event row to the in-memory slice.
func (w *InMemWriter) SaveEvent(row EventRow) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Events = append(w.Events, row)
}

// SavePnLReport appends a PnL row to the in-memory slice.
func (w *InMemWriter) SavePnLReport(_ context.Context, row PnLRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.PnLReports = append(w.PnLReports, row)
	return nil
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}

// Clear resets all the in-memory slices.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Events = make([]EventRow, 0)
	w.PnLReports = make([]PnLRow, 0)
	w.IsClosed = false
}
