// Package csvwriter appends trading events to a CSV journal file.
package csvwriter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
)

// Header is the first row of a new journal file.
var Header = []string{"published_at", "event_id", "tenant_id", "kind", "symbol", "side", "payload"}

// Writer is a CSV event journal. It implements alert.Sink.
type Writer struct {
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// NewWriter opens filePath for appending, writing the header if the file is new or empty.
func NewWriter(filePath string, logger *zap.Logger) (*Writer, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat CSV file: %w", err)
	}

	w := &Writer{
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger.Named("csv-journal"),
	}
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			file.Close()
			return nil, err
		}
		w.Flush()
	}
	return w, nil
}

// Publish writes one row per event and flushes it.
func (w *Writer) Publish(tenantID string, kind alert.Kind, payload alert.Payload) {
	ev := alert.NewEvent(tenantID, kind, payload)
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		w.logger.Error("failed to encode event payload", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	sub := ev.Subject()
	record := []string{
		ev.PublishedAt.Format(time.RFC3339Nano),
		ev.ID,
		ev.TenantID,
		string(ev.Kind),
		sub.Symbol,
		sub.Side,
		string(body),
	}
	if err := w.Write(record); err != nil {
		w.logger.Error("failed to journal event", zap.Error(err))
		return
	}
	w.Flush()
}

// Write writes a record to the CSV file.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.logger.Error("failed to flush CSV journal", zap.Error(err))
	}
}

// Close closes the file.
func (w *Writer) Close() error {
	w.Flush()
	return w.file.Close()
}
