package client

import (
	"testing"

	"github.com/pulsekit/pulse/internal/broadcast"
	"github.com/pulsekit/pulse/internal/event"
	"github.com/pulsekit/pulse/internal/retention"
)

func cacheWith(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return NewCache(cfg)
}

func TestCacheRoutesByPriority(t *testing.T) {
	c := cacheWith(t, DefaultConfig())
	c.Insert(event.Event{ID: 1, TsMs: 1, Priority: 1})
	c.Insert(event.Event{ID: 2, TsMs: 2, Priority: 0})
	view := c.CombinedView()
	if view.PriorityEvents != 1 || view.RegularEvents != 1 {
		t.Fatalf("routing wrong: %+v", view)
	}
}

func TestCacheDedupesAcrossBuckets(t *testing.T) {
	c := cacheWith(t, DefaultConfig())
	if !c.Insert(event.Event{ID: 1, TsMs: 1, Priority: 0}) {
		t.Fatalf("first insert rejected")
	}
	// redelivery of the same id, even with a different priority, is dropped
	if c.Insert(event.Event{ID: 1, TsMs: 1, Priority: 1}) {
		t.Fatalf("cross-bucket duplicate accepted")
	}
	if view := c.CombinedView(); view.TotalEvents != 1 {
		t.Fatalf("duplicate counted: %+v", view)
	}
}

func TestCombinedViewPreservePriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalDisplayLimit = 100
	c := cacheWith(t, cfg)
	now := int64(1_000_000)
	for i := 0; i < 3; i++ {
		c.Insert(event.Event{ID: uint64(i + 1), TsMs: now + int64(i), Priority: 1})
	}
	for i := 0; i < 150; i++ {
		c.Insert(event.Event{ID: uint64(10 + i), TsMs: now + 100 + int64(i), Priority: 0})
	}
	view := c.CombinedView()
	if view.TotalEvents != 100 || view.PriorityEvents != 3 || view.RegularEvents != 97 {
		t.Fatalf("preservePriority wrong: %+v", view)
	}
}

func TestCombinedViewPreserveNewest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalDisplayLimit = 10
	cfg.OverflowStrategy = PreserveNewest
	c := cacheWith(t, cfg)
	now := int64(1_000_000)
	// 5 old priority events, then 20 newer regular ones
	for i := 0; i < 5; i++ {
		c.Insert(event.Event{ID: uint64(i + 1), TsMs: now + int64(i), Priority: 1})
	}
	for i := 0; i < 20; i++ {
		c.Insert(event.Event{ID: uint64(10 + i), TsMs: now + 100 + int64(i), Priority: 0})
	}
	view := c.CombinedView()
	if view.TotalEvents != 10 || view.PriorityEvents != 0 {
		t.Fatalf("preserveNewest should drop old priority events: %+v", view)
	}
	if view.Events[0].TsMs != now+110 {
		t.Fatalf("wrong window: %+v", view.Events[0])
	}
}

func TestCombinedViewStrictPerBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalDisplayLimit = 10
	cfg.PriorityShare = 0.7
	cfg.OverflowStrategy = StrictPerBucket
	c := cacheWith(t, cfg)
	now := int64(1_000_000)
	for i := 0; i < 20; i++ {
		c.Insert(event.Event{ID: uint64(i + 1), TsMs: now + int64(i), Priority: 1})
	}
	for i := 0; i < 20; i++ {
		c.Insert(event.Event{ID: uint64(100 + i), TsMs: now + int64(i), Priority: 0})
	}
	view := c.CombinedView()
	// fixed slices: 7 priority, 3 regular, no headroom reallocation
	if view.PriorityEvents != 7 || view.RegularEvents != 3 {
		t.Fatalf("strictPerBucket split wrong: %+v", view)
	}
}

func TestResetReplacesWholesale(t *testing.T) {
	c := cacheWith(t, DefaultConfig())
	c.Insert(event.Event{ID: 1, TsMs: 1, Priority: 0})
	c.Insert(event.Event{ID: 2, TsMs: 2, Priority: 1})

	snapshot := []event.Event{
		{ID: 10, TsMs: 10, Priority: 0},
		{ID: 11, TsMs: 11, Priority: 1},
	}
	c.Reset(snapshot)
	view := c.CombinedView()
	if view.TotalEvents != 2 || view.Events[0].ID != 10 || view.Events[1].ID != 11 {
		t.Fatalf("stale state survived reset: %+v", view)
	}
}

// After a reconnect (Reset from a fresh server snapshot), the combined view
// must equal what the server's selector would return, with no residue.
func TestReconnectConvergesToServerView(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalDisplayLimit = 50
	c := cacheWith(t, cfg)

	// pre-disconnect state that must leave no trace
	for i := 0; i < 40; i++ {
		c.Insert(event.Event{ID: uint64(i + 1), TsMs: int64(i), Priority: i % 2})
	}

	var serverSide []event.Event
	for i := 0; i < 120; i++ {
		serverSide = append(serverSide, event.Event{ID: uint64(1000 + i), TsMs: int64(10_000 + i), Priority: i % 3 % 2})
	}
	event.SortAsc(serverSide)
	snapshot := retention.Limit(serverSide, cfg.TotalDisplayLimit, cfg.PriorityShare)

	c.Reset(snapshot)
	view := c.CombinedView()
	if len(view.Events) != len(snapshot) {
		t.Fatalf("view diverged: %d vs %d", len(view.Events), len(snapshot))
	}
	for i := range snapshot {
		if view.Events[i].ID != snapshot[i].ID {
			t.Fatalf("view diverged at %d: %d vs %d", i, view.Events[i].ID, snapshot[i].ID)
		}
	}
}

func TestPriorityInfoTracked(t *testing.T) {
	c := cacheWith(t, DefaultConfig())
	if c.PriorityInfo() != nil {
		t.Fatalf("expected no info before first envelope")
	}
	c.SetPriorityInfo(&broadcast.PriorityInfo{TotalEvents: 5})
	if info := c.PriorityInfo(); info == nil || info.TotalEvents != 5 {
		t.Fatalf("info not tracked: %+v", info)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default must validate: %v", err)
	}
	bad := DefaultConfig()
	bad.OverflowStrategy = "bogus"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected strategy error")
	}
	bad = DefaultConfig()
	bad.TotalDisplayLimit = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected limit error")
	}
}
