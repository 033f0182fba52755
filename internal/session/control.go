package session

import "sync"

// Control lets an operator start and soft-stop trading iterations. Requests
// are coalesced: several Start calls before the runner reacts count as one.
type Control struct {
	mu      sync.Mutex
	running bool
	start   chan struct{}
	stop    chan struct{}
}

// NewControl creates an idle Control.
func NewControl() *Control {
	return &Control{
		start: make(chan struct{}, 1),
		stop:  make(chan struct{}, 1),
	}
}

// Start requests a new iteration. It is a no-op while one is running.
func (c *Control) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	select {
	case c.start <- struct{}{}:
	default:
	}
	return true
}

// Stop requests the running iteration to wind down.
func (c *Control) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	select {
	case c.stop <- struct{}{}:
	default:
	}
	return true
}

// Running reports whether an iteration is in progress.
func (c *Control) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Control) setRunning(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = v
	if v {
		// Drain a stale stop left over from the previous iteration.
		select {
		case <-c.stop:
		default:
		}
	}
}
