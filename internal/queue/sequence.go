package queue

import "sync/atomic"

// Sequencer hands out event sequence numbers starting at 1.
type Sequencer struct{ n atomic.Uint64 }

func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Last returns the most recently issued number, 0 before the first call to Next.
func (s *Sequencer) Last() uint64 { return s.n.Load() }
