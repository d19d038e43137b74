package client

import (
	"testing"

	"github.com/pulsekit/pulse/internal/event"
)

func TestPoolNeverExceedsCap(t *testing.T) {
	for _, mode := range []evictionMode{evictStrict, evictBatch} {
		p := newBoundedPool(10, mode)
		for i := 0; i < 100; i++ {
			p.Insert(event.Event{ID: uint64(i + 1), TsMs: int64(i)})
			if p.Len() > p.Cap() {
				t.Fatalf("mode %d: pool grew past cap: %d > %d", mode, p.Len(), p.Cap())
			}
		}
	}
}

func TestPoolStrictEvictsOldestToExactCap(t *testing.T) {
	p := newBoundedPool(3, evictStrict)
	for i := 0; i < 5; i++ {
		p.Insert(event.Event{ID: uint64(i + 1), TsMs: int64(i)})
	}
	got := p.Events()
	if len(got) != 3 || got[0].ID != 3 || got[2].ID != 5 {
		t.Fatalf("expected newest 3, got %+v", got)
	}
}

func TestPoolBatchEvictsToLowWater(t *testing.T) {
	p := newBoundedPool(10, evictBatch)
	for i := 0; i < 11; i++ {
		p.Insert(event.Event{ID: uint64(i + 1), TsMs: int64(i)})
	}
	// crossing the cap trims to 80% in one batch
	if p.Len() != 8 {
		t.Fatalf("expected batch trim to 8, got %d", p.Len())
	}
	got := p.Events()
	if got[0].ID != 4 || got[len(got)-1].ID != 11 {
		t.Fatalf("wrong survivors: %+v", got)
	}
}

func TestPoolDeduplicatesByID(t *testing.T) {
	p := newBoundedPool(10, evictStrict)
	if !p.Insert(event.Event{ID: 7, TsMs: 1}) {
		t.Fatalf("first insert rejected")
	}
	if p.Insert(event.Event{ID: 7, TsMs: 2}) {
		t.Fatalf("duplicate id accepted")
	}
	if p.Len() != 1 {
		t.Fatalf("len: %d", p.Len())
	}
	if !p.Has(7) || p.Has(8) {
		t.Fatalf("id set wrong")
	}
}

func TestPoolToleratesOutOfOrderDelivery(t *testing.T) {
	p := newBoundedPool(10, evictStrict)
	p.Insert(event.Event{ID: 3, TsMs: 300})
	p.Insert(event.Event{ID: 1, TsMs: 100})
	p.Insert(event.Event{ID: 2, TsMs: 200})
	p.Insert(event.Event{ID: 4, TsMs: 200}) // ts tie, id breaks it
	got := p.Events()
	for i := 1; i < len(got); i++ {
		if !got[i-1].Less(got[i]) {
			t.Fatalf("not ascending at %d: %+v", i, got)
		}
	}
	if got[1].ID != 2 || got[2].ID != 4 {
		t.Fatalf("tie-break wrong: %+v", got)
	}
}

func TestPoolReplaceDiscardsOldContents(t *testing.T) {
	p := newBoundedPool(10, evictStrict)
	p.Insert(event.Event{ID: 1, TsMs: 1})
	p.Replace([]event.Event{{ID: 5, TsMs: 5}, {ID: 6, TsMs: 6}})
	if p.Has(1) {
		t.Fatalf("old contents survived replace")
	}
	got := p.Events()
	if len(got) != 2 || got[0].ID != 5 {
		t.Fatalf("replace wrong: %+v", got)
	}
}
