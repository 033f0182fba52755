package position

import (
	"fmt"
	"sort"
	"sync"

	"github.com/your-org/signal-trader/internal/exchange/okx"
)

// Table is the shared position state of one trading iteration.
type Table struct {
	mu          sync.Mutex
	instruments map[string]okx.Instrument
	specs       map[string]InstrumentSpec
	entries     map[Key]*Position
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		instruments: make(map[string]okx.Instrument),
		specs:       make(map[string]InstrumentSpec),
		entries:     make(map[Key]*Position),
	}
}

// LoadInstruments replaces the instrument catalogue used by Spec. Specs
// already derived for tracked symbols are kept.
func (t *Table) LoadInstruments(list []okx.Instrument) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instruments = make(map[string]okx.Instrument, len(list))
	for _, in := range list {
		t.instruments[in.InstID] = in
	}
}

// Spec returns the spec of symbol, deriving it from the catalogue on first
// use. A symbol with a spec is tracked by the reconciler.
func (t *Table) Spec(symbol string) (InstrumentSpec, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.specs[symbol]; ok {
		return s, nil
	}
	in, ok := t.instruments[symbol]
	if !ok {
		return InstrumentSpec{}, fmt.Errorf("%s: %w", symbol, ErrMissingSpec)
	}
	s, err := SpecFromInstrument(in)
	if err != nil {
		return InstrumentSpec{}, fmt.Errorf("%s: %w", symbol, err)
	}
	t.specs[symbol] = s
	return s, nil
}

// TrackedSymbols returns the symbols with a loaded spec, sorted.
func (t *Table) TrackedSymbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.specs))
	for s := range t.specs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsTracked reports whether symbol has a loaded spec.
func (t *Table) IsTracked(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.specs[symbol]
	return ok
}

func (t *Table) entry(k Key) *Position {
	p, ok := t.entries[k]
	if !ok {
		p = template(k)
		t.entries[k] = p
	}
	return p
}

// Claim moves k into the pending-open state. It fails with ErrInPosition or
// ErrPendingOpen when the key is guarded.
func (t *Table) Claim(k Key, marginVol float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.entry(k)
	if p.InPosition {
		return ErrInPosition
	}
	if p.PendingOpen {
		return ErrPendingOpen
	}
	p.PendingOpen = true
	p.MarginVol = marginVol
	return nil
}

// Release drops the pending-open claim unless the key is already in position.
func (t *Table) Release(k Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.entries[k]; ok && !p.InPosition {
		p.PendingOpen = false
	}
}

// SetLeverage records the effective leverage chosen for k.
func (t *Table) SetLeverage(k Key, lev int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(k).Leverage = lev
}

// SetOrderID records the open order of k. Only one order id may be
// outstanding per key.
func (t *Table) SetOrderID(k Key, ordID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.entry(k)
	if p.OrderID != "" && p.OrderID != ordID {
		return fmt.Errorf("%s has %s: %w", k, p.OrderID, ErrOrderOutstanding)
	}
	p.OrderID = ordID
	return nil
}

// OrderID returns the outstanding order id of k, if any.
func (t *Table) OrderID(k Key) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.entries[k]; ok {
		return p.OrderID
	}
	return ""
}

// ClearOrderID forgets the outstanding order of k and returns it.
func (t *Table) ClearOrderID(k Key) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[k]
	if !ok {
		return ""
	}
	id := p.OrderID
	p.OrderID = ""
	return id
}

// InPosition reports whether k currently holds a position.
func (t *Table) InPosition(k Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[k]
	return ok && p.InPosition
}

// Get returns a copy of the entry for k.
func (t *Table) Get(k Key) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[k]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// ApplyFill marks k as in position with the exchange snapshot. It returns
// the updated entry and whether this is the first fill seen for the key.
func (t *Table) ApplyFill(k Key, f Fill, ctVal float64) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.entry(k)
	first := !p.InPosition
	p.EntryPrice = f.EntryPrice
	p.TradeID = f.TradeID
	p.Leverage = f.Leverage
	p.CTimeMs = f.CTimeMs
	p.NotionalUSDT = f.NotionalUSDT
	p.AssetVol = f.Contracts * ctVal
	p.InPosition = true
	p.PendingOpen = false
	return *p, first
}

// CloseIfOpen resets k to the template when it was in position and returns
// the state it had before the reset.
func (t *Table) CloseIfOpen(k Key) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[k]
	if !ok || !p.InPosition {
		return Position{}, false
	}
	before := *p
	t.entries[k] = template(k)
	return before, true
}

// Keys returns every entry key, sorted.
func (t *Table) Keys() []Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sortKeys(out)
	return out
}

// OpenCount returns how many keys are in position.
func (t *Table) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.entries {
		if p.InPosition {
			n++
		}
	}
	return n
}

// Snapshot returns copies of every entry ordered by symbol then side.
func (t *Table) Snapshot() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Position, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// Reset forgets all entries and specs, as at the end of an iteration.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instruments = make(map[string]okx.Instrument)
	t.specs = make(map[string]InstrumentSpec)
	t.entries = make(map[Key]*Position)
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Side < keys[j].Side
	})
}
