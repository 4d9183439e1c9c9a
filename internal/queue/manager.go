// Package queue implements an in-memory event queue and worker manager.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/config"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/events"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
)

// sinkTimeout bounds a single delivery so one slow sink cannot stall a worker.
const sinkTimeout = 5 * time.Second

// Manager sequences ledger events and fans them out to sinks from a pool of
// autoscaled workers.
type Manager struct {
	cfg    config.Config
	q      *Queue[model.Event]
	sinks  []events.Sink
	seq    Sequencer
	ctx    context.Context
	cancel context.CancelFunc

	dropped atomic.Uint64
	failed  atomic.Uint64

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewManager constructs a Manager delivering to the given sinks.
func NewManager(cfg config.Config, q *Queue[model.Event], sinks ...events.Sink) *Manager {
	return &Manager{cfg: cfg, q: q, sinks: sinks}
}

// Start begins processing and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	m.addWorkers(m.cfg.InitialWorkerCount)
	go m.scaler()
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
}

// Record stamps ev with the next sequence number and enqueues it. It never
// blocks, so the ledger may call it while holding its lock.
func (m *Manager) Record(ev model.Event) {
	ev.Sequence = m.seq.Next()
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if !m.q.Enqueue(ev) {
		m.dropped.Add(1)
		obs.Logger.Warn("event_dropped", "sequence", ev.Sequence, "kind", ev.Kind, "product_id", ev.ProductID)
	}
}

func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			backlog := m.q.BacklogSize()
			wc := m.WorkerCount()
			if backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax {
				m.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
					m.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.workerCancels) {
		n = len(m.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.q.Out():
			m.deliver(ev)
			m.q.MarkProcessed()
		}
	}
}

// deliver hands ev to every sink. Failures are logged and not retried.
func (m *Manager) deliver(ev model.Event) {
	for _, s := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := s.Deliver(ctx, ev)
		cancel()
		if err != nil {
			m.failed.Add(1)
			obs.Logger.Error("event_delivery_failed", "sink", s.Name(), "sequence", ev.Sequence, "kind", ev.Kind, "error", err)
		}
	}
}

func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

func (m *Manager) QueueDepth() int { return m.q.Depth() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// LastSequence returns the sequence number of the most recent event.
func (m *Manager) LastSequence() uint64 { return m.seq.Last() }

// Dropped returns how many events were refused after intake closed.
func (m *Manager) Dropped() uint64 { return m.dropped.Load() }

// DeliveryFailures returns how many sink deliveries returned an error.
func (m *Manager) DeliveryFailures() uint64 { return m.failed.Load() }

func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake makes Record drop further events.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() (enq, proc uint64, backlog, depth int) {
	return m.q.Metrics()
}

// DrainUntil blocks until every enqueued event has been delivered or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		enq, proc, backlog, depth := m.q.Metrics()
		if backlog == 0 && depth == 0 && enq == proc {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
