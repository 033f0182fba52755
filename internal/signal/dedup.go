package signal

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// MessageKey identifies a raw message as "<arrivalMs>_<hash(text)>".
func MessageKey(arrivalMs int64, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%d_%x", arrivalMs, h.Sum64())
}

// Deduper records which message keys have been dispatched.
//
// A key is in flight from TryMark until Release. Released keys are retired
// rather than forgotten, so a message still sitting in the window is never
// dispatched twice; retired keys are dropped by Prune once they are older
// than the dispatch age limit and can no longer pass the age gate.
type Deduper struct {
	mu       sync.Mutex
	inFlight map[string]int64
	retired  map[string]int64
}

// NewDeduper returns an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{
		inFlight: make(map[string]int64),
		retired:  make(map[string]int64),
	}
}

// TryMark marks key as dispatched. It returns false if the key is in flight
// or retired.
func (d *Deduper) TryMark(key string, arrivalMs int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[key]; ok {
		return false
	}
	if _, ok := d.retired[key]; ok {
		return false
	}
	d.inFlight[key] = arrivalMs
	return true
}

// Release ends the lifecycle of an in-flight key. Unknown keys are ignored.
func (d *Deduper) Release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ms, ok := d.inFlight[key]
	if !ok {
		return
	}
	delete(d.inFlight, key)
	d.retired[key] = ms
}

// Seen reports whether key is in flight or retired.
func (d *Deduper) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, a := d.inFlight[key]
	_, b := d.retired[key]
	return a || b
}

// InFlight reports whether key is currently dispatched and not yet released.
func (d *Deduper) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[key]
	return ok
}

// Prune forgets retired keys whose arrival is before cutoffMs and returns
// how many were removed.
func (d *Deduper) Prune(cutoffMs int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for k, ms := range d.retired {
		if ms < cutoffMs {
			delete(d.retired, k)
			n++
		}
	}
	return n
}

// Len returns the number of in-flight and retired keys.
func (d *Deduper) Len() (inFlight, retired int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight), len(d.retired)
}
