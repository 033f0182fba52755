package signal

import (
	"sync"

	"github.com/your-org/signal-trader/pkg/ring"
)

// DefaultWindowSize is the number of raw messages kept for scanning.
const DefaultWindowSize = 20

// MessageWindow keeps the most recent raw messages in arrival order. A
// message is rejected if another one with the same arrival timestamp is
// still remembered; the remembered timestamps are forgotten whenever the
// window evicts its oldest entry.
type MessageWindow struct {
	mu   sync.Mutex
	buf  *ring.Buffer[RawMessage]
	seen map[int64]struct{}
}

// NewMessageWindow creates a window holding at most size messages.
func NewMessageWindow(size int) *MessageWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &MessageWindow{
		buf:  ring.New[RawMessage](size),
		seen: make(map[int64]struct{}),
	}
}

// Append stores a message. It returns false for empty text or an already
// seen arrival timestamp.
func (w *MessageWindow) Append(text string, arrivalMs int64) bool {
	if text == "" || arrivalMs <= 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, dup := w.seen[arrivalMs]; dup {
		return false
	}
	w.seen[arrivalMs] = struct{}{}
	if _, evicted := w.buf.Add(RawMessage{Text: text, ArrivalMs: arrivalMs}); evicted {
		w.seen = make(map[int64]struct{})
	}
	return true
}

// Poll returns a copy of the window, oldest first.
func (w *MessageWindow) Poll() []RawMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Items()
}

// Len returns the number of buffered messages.
func (w *MessageWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Len()
}

// Reset drops every buffered message.
func (w *MessageWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Reset()
	w.seen = make(map[int64]struct{})
}
