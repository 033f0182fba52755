package okx

import (
	"context"
	"time"
)

// RetryPolicy decides how long to wait between attempts of a transient
// failure. MaxAttempts <= 0 means retry until the context ends.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Multiplier > 1 turns the fixed backoff into an exponential one capped at MaxBackoff.
	Multiplier float64
	MaxBackoff time.Duration
}

// DefaultRetryPolicy retries forever with a fixed one second pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: time.Second}
}

// Delay returns the pause before attempt+1 (attempt starts at 1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Backoff
	if d <= 0 {
		d = time.Second
	}
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Multiplier)
			if p.MaxBackoff > 0 && d >= p.MaxBackoff {
				return p.MaxBackoff
			}
		}
	}
	return d
}

// Exhausted reports whether no further attempt is allowed.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Wait sleeps for the attempt's delay, returning ErrStopped if ctx ends first.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ErrStopped
	case <-t.C:
		return nil
	}
}
