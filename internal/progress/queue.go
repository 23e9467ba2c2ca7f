package progress

import (
	"sync"
	"time"
)

const (
	// DefaultSoftCap is the backlog size beyond which a producer starts
	// yielding to the consumer.
	DefaultSoftCap = 1024

	yieldInterval    = time.Millisecond
	maxYieldsPerPush = 10
)

// Queue carries progress messages from one worker goroutine to one
// consumer. Push is lossless: a backlog over the soft capacity makes the
// producer nap briefly so a live consumer can drain, but the message is
// always enqueued. Poll never blocks.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	softCap int

	pushed uint64
	polled uint64
	yields uint64
}

// NewQueue creates a queue with the given soft capacity. Values <= 0
// select DefaultSoftCap.
func NewQueue[T any](softCap int) *Queue[T] {
	if softCap <= 0 {
		softCap = DefaultSoftCap
	}
	return &Queue[T]{softCap: softCap}
}

// Push appends one message. Only the owning worker goroutine may call it.
func (q *Queue[T]) Push(item T) {
	for i := 0; i < maxYieldsPerPush; i++ {
		q.mu.Lock()
		over := len(q.items) >= q.softCap
		if over {
			q.yields++
		}
		q.mu.Unlock()
		if !over {
			break
		}
		time.Sleep(yieldInterval)
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.pushed++
	q.mu.Unlock()
}

// Poll drains and returns every queued message, oldest first. It returns
// nil when the queue is empty.
func (q *Queue[T]) Poll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	q.polled += uint64(len(out))
	return out
}

// Len returns the current backlog size.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Metrics returns queue statistics.
func (q *Queue[T]) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Metrics{
		Pushed:  q.pushed,
		Polled:  q.polled,
		Yields:  q.yields,
		Backlog: len(q.items),
		SoftCap: q.softCap,
	}
}

// Metrics holds queue statistics.
type Metrics struct {
	Pushed  uint64
	Polled  uint64
	Yields  uint64
	Backlog int
	SoftCap int
}
