// Package client implements the consumer-side mirror of the retention
// policy: two bounded ordered pools, a capped combined view, and a stream
// connection that rebuilds the cache wholesale on every reconnect.
package client

import (
	"sort"

	"github.com/pulsekit/pulse/internal/event"
)

// Pool is a bounded ordered pool of events. Implementations keep events
// ascending by (ts, id), never exceed their cap, and drop duplicate ids.
type Pool interface {
	// Insert adds one event, evicting oldest events as needed. Returns false
	// when the id is already present.
	Insert(ev event.Event) bool
	// Events returns an ascending copy of the pool's contents.
	Events() []event.Event
	// Replace swaps the pool's contents wholesale.
	Replace(events []event.Event)
	// Has reports whether an id is currently in the pool.
	Has(id uint64) bool
	Len() int
	Cap() int
}

// evictionMode selects how a full pool sheds events.
type evictionMode int

const (
	// evictStrict trims to exactly the cap on every insert.
	evictStrict evictionMode = iota
	// evictBatch trims to 80% of the cap once the cap is crossed, amortizing
	// eviction cost for high-churn pools.
	evictBatch
)

const batchLowWater = 0.8

// boundedPool is an ordered slice with an id set for duplicate detection.
// Events normally arrive in order, so inserts are appends; out-of-order
// arrivals fall back to a binary-search insert.
type boundedPool struct {
	cap    int
	mode   evictionMode
	events []event.Event
	ids    map[uint64]struct{}
}

func newBoundedPool(capacity int, mode evictionMode) *boundedPool {
	if capacity < 1 {
		capacity = 1
	}
	return &boundedPool{
		cap:  capacity,
		mode: mode,
		ids:  make(map[uint64]struct{}, capacity),
	}
}

func (p *boundedPool) Insert(ev event.Event) bool {
	if _, dup := p.ids[ev.ID]; dup {
		return false
	}
	n := len(p.events)
	if n == 0 || p.events[n-1].Less(ev) {
		p.events = append(p.events, ev)
	} else {
		at := sort.Search(n, func(i int) bool { return ev.Less(p.events[i]) })
		p.events = append(p.events, event.Event{})
		copy(p.events[at+1:], p.events[at:])
		p.events[at] = ev
	}
	p.ids[ev.ID] = struct{}{}
	p.evict()
	return true
}

func (p *boundedPool) evict() {
	if len(p.events) <= p.cap {
		return
	}
	target := p.cap
	if p.mode == evictBatch {
		target = int(float64(p.cap) * batchLowWater)
	}
	drop := len(p.events) - target
	for _, ev := range p.events[:drop] {
		delete(p.ids, ev.ID)
	}
	p.events = append(p.events[:0], p.events[drop:]...)
}

func (p *boundedPool) Events() []event.Event {
	out := make([]event.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *boundedPool) Replace(events []event.Event) {
	p.events = p.events[:0]
	p.ids = make(map[uint64]struct{}, p.cap)
	for _, ev := range events {
		p.Insert(ev)
	}
}

func (p *boundedPool) Has(id uint64) bool {
	_, ok := p.ids[id]
	return ok
}

func (p *boundedPool) Len() int { return len(p.events) }
func (p *boundedPool) Cap() int { return p.cap }
