// Package mailbox implements a single-slot, overwrite-on-publish buffer.
//
// A producer publishes without ever blocking. The consumer takes the newest
// unconsumed value; anything published in between is dropped. The last
// published value stays readable through Latest even after it was taken.
package mailbox

import (
	"context"
	"sync"
)

type Slot[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	full   bool
	latest T
	seen   bool
	closed bool
	drops  uint64
}

func New[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish replaces any unconsumed value with v. No-op after Close.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.full {
		s.drops++
	}

	s.value = v
	s.full = true
	s.latest = v
	s.seen = true

	s.cond.Signal()
}

// Next blocks until a value is available, the slot is closed, or ctx is done.
// ok is false in the latter two cases.
func (s *Slot[T]) Next(ctx context.Context) (v T, ok bool) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.full && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}
	if !s.full {
		return v, false
	}

	v = s.value
	var zero T
	s.value = zero
	s.full = false
	return v, true
}

// Latest returns the most recently published value, consumed or not.
func (s *Slot[T]) Latest() (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seen
}

// Drops counts values overwritten before anyone consumed them.
func (s *Slot[T]) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// Close wakes blocked consumers. A pending value can still be taken.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}
