package signal

import (
	"time"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/metrics"
)

// DefaultProcessingLimit is how many of the most recent window entries a
// scan considers.
const DefaultProcessingLimit = 10

// Intent is a complete signal ready for execution together with the dedup
// key that must be released when its lifecycle ends.
type Intent struct {
	Key    string
	Signal Signal
}

// Blacklist reports symbols that must never be traded.
type Blacklist interface {
	Contains(symbol string) bool
}

// Ingestor scans a Source and turns new messages into Intents.
type Ingestor struct {
	source    Source
	dedup     *Deduper
	blacklist Blacklist
	limit     int
	now       func() time.Time
	logger    *zap.Logger
}

// IngestorOption customises an Ingestor.
type IngestorOption func(*Ingestor)

// WithClock overrides the wall clock used for the age gate.
func WithClock(now func() time.Time) IngestorOption {
	return func(in *Ingestor) { in.now = now }
}

// WithBlacklist sets the symbols skipped at scan time.
func WithBlacklist(b Blacklist) IngestorOption {
	return func(in *Ingestor) { in.blacklist = b }
}

// WithProcessingLimit sets how many recent messages one scan considers.
func WithProcessingLimit(n int) IngestorOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.limit = n
		}
	}
}

// NewIngestor creates an Ingestor over source sharing the given Deduper.
func NewIngestor(source Source, dedup *Deduper, logger *zap.Logger, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		source: source,
		dedup:  dedup,
		limit:  DefaultProcessingLimit,
		now:    time.Now,
		logger: logger.Named("ingestor"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Deduper returns the dedup set shared with the execution side.
func (in *Ingestor) Deduper() *Deduper {
	return in.dedup
}

// Scan looks at the most recent messages and returns those that are new,
// complete, not blacklisted and younger than maxAge. Every returned Intent
// holds an in-flight dedup key; every other inspected message is retired
// immediately.
func (in *Ingestor) Scan(maxAge time.Duration) []Intent {
	msgs := in.source.Poll()
	if len(msgs) > in.limit {
		msgs = msgs[len(msgs)-in.limit:]
	}

	now := in.now()
	if maxAge > 0 {
		in.dedup.Prune(now.Add(-maxAge).UnixMilli())
	}

	var intents []Intent
	for _, m := range msgs {
		if m.Text == "" || m.ArrivalMs <= 0 {
			continue
		}
		age := now.Sub(time.UnixMilli(m.ArrivalMs))
		if maxAge > 0 && age >= maxAge {
			// Too old to trade; the key is not recorded at all.
			continue
		}

		key := MessageKey(m.ArrivalMs, m.Text)
		if !in.dedup.TryMark(key, m.ArrivalMs) {
			continue
		}

		sig, ok := Parse(m.Text)
		if !ok {
			in.logger.Debug("parse incomplete", zap.String("key", key), zap.Stringer("signal", sig))
			metrics.Signals.WithLabelValues(metrics.SignalIncomplete).Inc()
			in.dedup.Release(key)
			continue
		}
		if in.blacklist != nil && in.blacklist.Contains(sig.Symbol) {
			in.logger.Debug("blacklisted symbol", zap.String("symbol", sig.Symbol))
			metrics.Signals.WithLabelValues(metrics.SignalBlacklisted).Inc()
			in.dedup.Release(key)
			continue
		}

		sig.ArrivalMs = m.ArrivalMs
		metrics.Signals.WithLabelValues(metrics.SignalDispatched).Inc()
		intents = append(intents, Intent{Key: key, Signal: sig})
	}
	return intents
}
