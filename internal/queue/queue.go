package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
)

// Queue is an unbounded backlog feeding a buffered output channel through a
// background broker, so producers never block.
type Queue[T any] struct {
	mu           sync.Mutex
	backlog      []T
	notify       chan struct{}
	out          chan T
	shuttingDown atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64
}

// New creates a Queue whose output channel buffers outBuffer items.
func New[T any](outBuffer int) *Queue[T] {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		out:    make(chan T, outBuffer),
	}
}

// Start runs the broker until ctx is done.
func (q *Queue[T]) Start(ctx context.Context, highWatermark int) {
	go q.broker(ctx, highWatermark)
}

func (q *Queue[T]) broker(ctx context.Context, highWatermark int) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	warned := false
	for {
		q.flushOnce()
		if highWatermark > 0 {
			sz := q.BacklogSize()
			switch {
			case sz > highWatermark && !warned:
				obs.Logger.Warn("event_backlog_high", "backlog_size", sz, "high_watermark", highWatermark)
				warned = true
			case sz <= highWatermark:
				warned = false
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// flushOnce moves as much backlog as fits into the output buffer.
func (q *Queue[T]) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(q.backlog) && len(q.out) < cap(q.out) {
		q.out <- q.backlog[n]
		n++
	}
	if n == 0 {
		return
	}
	var zero T
	for i := 0; i < n; i++ {
		q.backlog[i] = zero
	}
	q.backlog = q.backlog[n:]
}

// Enqueue appends item to the backlog. It returns false once intake is closed.
func (q *Queue[T]) Enqueue(item T) bool {
	if q.shuttingDown.Load() {
		return false
	}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue[T]) Out() <-chan T { return q.out }

func (q *Queue[T]) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Depth returns backlog plus buffered output items.
func (q *Queue[T]) Depth() int {
	q.mu.Lock()
	bl := len(q.backlog)
	q.mu.Unlock()
	return bl + len(q.out)
}

func (q *Queue[T]) MarkProcessed() { q.processed.Add(1) }

// Metrics returns counters and sizes for observability.
func (q *Queue[T]) Metrics() (enq, proc uint64, backlog, depth int) {
	return q.enqueued.Load(), q.processed.Load(), q.BacklogSize(), q.Depth()
}

func (q *Queue[T]) CloseIntake() { q.shuttingDown.Store(true) }

func (q *Queue[T]) IsShuttingDown() bool { return q.shuttingDown.Load() }
