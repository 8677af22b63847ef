// Package dispatch holds the per-dispatcher outbound ticket queue. The
// queue is unbounded, as spec.md §4.4 requires: a slow or disconnected
// dispatcher must never make the central actor block.
package dispatch

import (
	"context"
	"sync"

	"speedd/internal/wire"
)

// Sink is a single-producer (the engine actor), single-consumer (the
// dispatcher's write pump) unbounded queue of tickets. Go has no
// built-in unbounded channel, so this pairs a growable slice with a
// capacity-1 "something arrived" signal, which is the standard way to
// build one on top of channels.
type Sink struct {
	mu     sync.Mutex
	queue  []wire.Ticket
	notify chan struct{}
	closed bool
}

// NewSink creates an empty sink. capacityHint preallocates the backing
// slice to avoid repeated growth for dispatchers expected to carry a
// steady backlog; 0 is a perfectly good default.
func NewSink(capacityHint int) *Sink {
	s := &Sink{notify: make(chan struct{}, 1)}
	if capacityHint > 0 {
		s.queue = make([]wire.Ticket, 0, capacityHint)
	}
	return s
}

// Send enqueues a ticket. It never blocks and never drops.
func (s *Sink) Send(t wire.Ticket) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a ticket is available, ctx is cancelled, or the
// sink is closed. The bool result is false only in the latter two
// cases.
func (s *Sink) Next(ctx context.Context) (wire.Ticket, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return t, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return wire.Ticket{}, false
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return wire.Ticket{}, false
		}
	}
}

// Close marks the sink closed; buffered tickets are discarded, as
// spec.md §4.4 permits ("tickets already handed to a removed sink are
// considered lost").
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}
