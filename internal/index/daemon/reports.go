package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/cardsync/cardsync/internal/index/schema"
)

// Report tells the report consumer that the index changed for one card.
type Report struct {
	Card schema.QualifiedID
	Op   EventOp
	At   time.Time
}

// ReportQueue is an unbounded FIFO between the watchers and a single
// long-lived consumer. Push never blocks, so index mutation latency does
// not depend on the consumer.
type ReportQueue struct {
	mu     sync.Mutex
	items  []Report
	notify chan struct{}
	closed bool
}

// NewReportQueue creates an empty queue.
func NewReportQueue() *ReportQueue {
	return &ReportQueue{notify: make(chan struct{}, 1)}
}

// Push appends r. Pushing to a closed queue drops the report.
func (q *ReportQueue) Push(r Report) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest report, waiting until one is
// available. It returns false once ctx is done, or once the queue is
// closed and drained.
func (q *ReportQueue) Pop(ctx context.Context) (Report, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items[0] = Report{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return r, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Report{}, false
		}

		select {
		case <-ctx.Done():
			return Report{}, false
		case <-q.notify:
		}
	}
}

// Consume calls fn for every report in order until ctx is done or the
// queue is closed and drained.
func (q *ReportQueue) Consume(ctx context.Context, fn func(Report)) {
	for {
		r, ok := q.Pop(ctx)
		if !ok {
			return
		}
		fn(r)
	}
}

// Len returns the number of pending reports.
func (q *ReportQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes any waiting consumer. Reports already queued can still be
// popped.
func (q *ReportQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
