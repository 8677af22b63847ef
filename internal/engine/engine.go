// Package engine implements the single-writer actor that owns every
// plate observation, the per-plate ticketed-day sets, the dispatcher
// registry, and the pending-ticket queue. Every mutation described in
// spec.md §4.3/§4.4 is serialized through one command channel, which
// is what makes invariants I2-I4 provable without per-field locking
// (I1, limit agreement, is enforced by the camera package instead).
package engine

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"speedd/internal/dispatch"
	"speedd/internal/metrics"
	"speedd/internal/wire"
)

// cmdQueueDepth bounds how many pending commands may queue up before a
// producer blocks. It only exists to give the actor backpressure a
// shape; the actor drains it far faster than 150 connections can fill it.
const cmdQueueDepth = 1024

type dispatcherEntry struct {
	roads map[uint16]struct{}
	sink  *dispatch.Sink
}

// Engine is the central actor. Zero value is not usable; use New.
type Engine struct {
	cmds         chan func()
	log          logrus.FieldLogger
	mx           *metrics.Metrics
	sinkCapacity int

	// observations[road][plate] is kept sorted by timestamp.
	observations map[uint16]map[string][]observation
	// ticketedDays[plate] is the set of days a ticket already covers.
	ticketedDays map[string]map[int64]struct{}

	dispatcherOrder []uuid.UUID
	dispatchers     map[uuid.UUID]*dispatcherEntry
	pending         []wire.Ticket
}

// New creates an Engine. sinkCapacity preallocates each new
// dispatcher's outbound queue (see dispatch.NewSink); 0 is fine. Call
// Run in its own goroutine to start processing; nothing happens until
// Run is running.
func New(log logrus.FieldLogger, mx *metrics.Metrics, sinkCapacity int) *Engine {
	return &Engine{
		cmds:         make(chan func(), cmdQueueDepth),
		log:          log,
		mx:           mx,
		sinkCapacity: sinkCapacity,
		observations: make(map[uint16]map[string][]observation),
		ticketedDays: make(map[string]map[int64]struct{}),
		dispatchers:  make(map[uuid.UUID]*dispatcherEntry),
	}
}

// Run processes commands until ctx is cancelled. It must run on
// exactly one goroutine for the lifetime of the Engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-e.cmds:
			cmd()
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) enqueue(ctx context.Context, cmd func()) {
	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
	}
}

// SubmitPlate hands a plate observation to the engine. It does not
// wait for processing to complete: ordering is guaranteed by channel
// FIFO as long as each camera connection calls SubmitPlate from a
// single goroutine, which the session package guarantees.
func (e *Engine) SubmitPlate(ctx context.Context, road, mile, limit uint16, p wire.Plate) {
	e.enqueue(ctx, func() {
		e.handlePlate(road, mile, limit, p)
	})
}

// RegisterDispatcher adds a dispatcher covering roads and returns the
// sink its write pump should drain. It blocks until registration (and
// any resulting pending-ticket drain) has completed, so that the
// caller never races a ticket delivered to a sink not yet being read.
func (e *Engine) RegisterDispatcher(ctx context.Context, id uuid.UUID, roads []uint16) *dispatch.Sink {
	sink := dispatch.NewSink(e.sinkCapacity)
	done := make(chan struct{})
	e.enqueue(ctx, func() {
		e.handleRegisterDispatcher(id, roads, sink)
		close(done)
	})
	select {
	case <-done:
	case <-ctx.Done():
	}
	return sink
}

// UnregisterDispatcher removes a dispatcher. It blocks until the
// removal has been applied, matching the scoped-release pattern
// described in spec.md §9.
func (e *Engine) UnregisterDispatcher(ctx context.Context, id uuid.UUID) {
	done := make(chan struct{})
	e.enqueue(ctx, func() {
		e.handleUnregisterDispatcher(id)
		close(done)
	})
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Engine) handlePlate(road, mile, limit uint16, p wire.Plate) {
	e.mx.PlateObserved()

	byPlate := e.observations[road]
	if byPlate == nil {
		byPlate = make(map[string][]observation)
		e.observations[road] = byPlate
	}

	newObs := observation{timestamp: p.Timestamp, mile: mile}
	updated, idx, inserted := insertSorted(byPlate[p.Plate], newObs)
	byPlate[p.Plate] = updated
	if !inserted {
		return
	}

	type candidate struct{ a, b observation }
	var candidates []candidate
	for i, o := range updated {
		if i == idx {
			continue
		}
		if o.timestamp < newObs.timestamp {
			candidates = append(candidates, candidate{a: o, b: newObs})
		} else {
			candidates = append(candidates, candidate{a: newObs, b: o})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].a.timestamp < candidates[j].a.timestamp
	})

	days := e.ticketedDays[p.Plate]
	if days == nil {
		days = make(map[int64]struct{})
		e.ticketedDays[p.Plate] = days
	}

	for _, c := range candidates {
		dt := c.b.timestamp - c.a.timestamp
		dx := absDiff(c.a.mile, c.b.mile)
		if !isViolation(dx, dt, limit) {
			continue
		}

		dayStart, dayEnd := dayOf(c.a.timestamp), dayOf(c.b.timestamp)
		if daySpanIntersects(days, dayStart, dayEnd) {
			continue
		}

		ticket := wire.Ticket{
			Plate:      p.Plate,
			Road:       road,
			Mile1:      c.a.mile,
			Timestamp1: c.a.timestamp,
			Mile2:      c.b.mile,
			Timestamp2: c.b.timestamp,
			Speed:      speedX100(dx, dt),
		}
		for d := dayStart; d <= dayEnd; d++ {
			days[d] = struct{}{}
		}

		e.mx.TicketEmitted()
		e.log.WithFields(logrus.Fields{
			"plate": ticket.Plate,
			"road":  ticket.Road,
			"speed": ticket.Speed,
		}).Info("engine: ticket emitted")
		e.route(ticket)
	}
}

func daySpanIntersects(days map[int64]struct{}, start, end int64) bool {
	for d := start; d <= end; d++ {
		if _, ok := days[d]; ok {
			return true
		}
	}
	return false
}

// route delivers t to the first-registered dispatcher covering its
// road, or appends it to the pending queue. "First-registered" is the
// deterministic tie-break spec.md §4.4 allows.
func (e *Engine) route(t wire.Ticket) {
	for _, id := range e.dispatcherOrder {
		entry := e.dispatchers[id]
		if entry == nil {
			continue
		}
		if _, ok := entry.roads[t.Road]; ok {
			entry.sink.Send(t)
			return
		}
	}
	e.pending = append(e.pending, t)
	e.mx.SetPendingTickets(len(e.pending))
}

func (e *Engine) handleRegisterDispatcher(id uuid.UUID, roads []uint16, sink *dispatch.Sink) {
	roadSet := make(map[uint16]struct{}, len(roads))
	for _, r := range lo.Uniq(roads) {
		roadSet[r] = struct{}{}
	}
	e.dispatchers[id] = &dispatcherEntry{roads: roadSet, sink: sink}
	e.dispatcherOrder = append(e.dispatcherOrder, id)
	e.log.WithField("conn_id", id).Info("engine: dispatcher registered")
	e.drainPending()
}

func (e *Engine) drainPending() {
	if len(e.pending) == 0 {
		return
	}
	remaining := e.pending[:0:0]
	for _, t := range e.pending {
		delivered := false
		for _, id := range e.dispatcherOrder {
			entry := e.dispatchers[id]
			if entry == nil {
				continue
			}
			if _, ok := entry.roads[t.Road]; ok {
				entry.sink.Send(t)
				delivered = true
				break
			}
		}
		if !delivered {
			remaining = append(remaining, t)
		}
	}
	e.pending = remaining
	e.mx.SetPendingTickets(len(e.pending))
}

func (e *Engine) handleUnregisterDispatcher(id uuid.UUID) {
	entry, ok := e.dispatchers[id]
	if !ok {
		return
	}
	entry.sink.Close()
	delete(e.dispatchers, id)
	e.dispatcherOrder = lo.Reject(e.dispatcherOrder, func(v uuid.UUID, _ int) bool {
		return v == id
	})
	e.log.WithField("conn_id", id).Info("engine: dispatcher unregistered")
}
