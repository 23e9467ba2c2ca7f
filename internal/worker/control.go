package worker

import (
	"sync/atomic"
	"time"
)

// CancelCheckInterval bounds how long a sleeping worker can take to notice
// a cancellation request.
const CancelCheckInterval = 100 * time.Millisecond

// Control coordinates one embedder with one background worker goroutine.
// The embedder calls Cancel; the worker polls Cancelled between units of
// work and sleeps through Sleep so ticks stay interruptible.
type Control struct {
	cancelled atomic.Bool
}

// NewControl returns a control in the not-cancelled state.
func NewControl() *Control {
	return &Control{}
}

// Cancel requests that the worker stop. Safe to call from any goroutine
// and more than once.
func (c *Control) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (c *Control) Cancelled() bool {
	return c.cancelled.Load()
}

// Sleep waits for d, waking at CancelCheckInterval granularity to poll for
// cancellation. It returns false when the sleep was cut short by Cancel.
func (c *Control) Sleep(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if c.Cancelled() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > CancelCheckInterval {
			remaining = CancelCheckInterval
		}
		time.Sleep(remaining)
	}
}
