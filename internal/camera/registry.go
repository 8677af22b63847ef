// Package camera tracks which road each connected camera claims and
// enforces that every camera on a road agrees on its speed limit.
package camera

import (
	"fmt"
	"sync"
)

// Registry is the short-held mutex described in spec.md §5: the one
// piece of state that crosses task boundaries without going through
// the central actor, because validation here never depends on
// observation history.
type Registry struct {
	mu    sync.Mutex
	roads map[uint16]roadEntry
}

type roadEntry struct {
	limit uint16
	count int
}

// New creates an empty camera registry.
func New() *Registry {
	return &Registry{roads: make(map[uint16]roadEntry)}
}

// Handle releases this camera's registration when dropped. Exactly one
// Release call is expected per successful Register, from whichever
// code path tears the connection down (normal close, protocol error,
// or a recovered panic).
type Handle struct {
	reg  *Registry
	road uint16
	released bool
}

// Register claims a slot on road at limit. It fails with an error if
// another currently-connected camera on the same road declared a
// different limit (invariant I1).
func (r *Registry) Register(road, limit uint16) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.roads[road]
	if ok && entry.limit != limit {
		return nil, fmt.Errorf("camera: road %d already has limit %d, got %d", road, entry.limit, limit)
	}
	if !ok {
		entry = roadEntry{limit: limit}
	}
	entry.count++
	r.roads[road] = entry

	return &Handle{reg: r, road: road}, nil
}

// Release decrements the reference count for this handle's road,
// removing the road entirely once no camera references it. Safe to
// call more than once; only the first call has effect.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true

	r := h.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.roads[h.road]
	if !ok {
		return
	}
	entry.count--
	if entry.count <= 0 {
		delete(r.roads, h.road)
		return
	}
	r.roads[h.road] = entry
}

// Limit returns the currently agreed speed limit for road, if any
// camera is registered for it.
func (r *Registry) Limit(road uint16) (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.roads[road]
	return entry.limit, ok
}
