package events

import (
	"context"
	"sort"
	"sync"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
)

// Feed keeps the most recent events in a fixed-size ring.
type Feed struct {
	mu   sync.RWMutex
	buf  []model.Event
	next int
	full bool
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 200
	}
	return &Feed{buf: make([]model.Event, size)}
}

func (f *Feed) Name() string { return "feed" }

func (f *Feed) Deliver(_ context.Context, ev model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.next] = ev
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first. Workers deliver concurrently,
// so events are ordered by sequence rather than arrival.
func (f *Feed) Recent(limit int) []model.Event {
	f.mu.RLock()
	n := f.next
	if f.full {
		n = len(f.buf)
	}
	out := make([]model.Event, n)
	copy(out, f.buf[:n])
	f.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
