package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pulsekit/pulse/internal/event"
	pebblestore "github.com/pulsekit/pulse/internal/storage/pebble"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s, err := Open(db, logpkg.NewNopLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func appendEvent(t *testing.T, s *Store, kind, session string, tsMs int64, priority int) event.Event {
	t.Helper()
	ev, err := s.Append(context.Background(), event.Event{
		ProducerApp: "test",
		SessionID:   session,
		Kind:        kind,
		Payload:     json.RawMessage(`{}`),
		TsMs:        tsMs,
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return ev
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := openTestStore(t)
	a := appendEvent(t, s, "ToolUse", "s1", 100, 0)
	b := appendEvent(t, s, "ToolUse", "s1", 100, 0)
	if !(a.ID < b.ID) {
		t.Fatalf("ids not increasing: %d %d", a.ID, b.ID)
	}
	if a.TsMs != 100 {
		t.Fatalf("explicit timestamp overwritten: %d", a.TsMs)
	}
}

func TestAppendAssignsTimestampWhenAbsent(t *testing.T) {
	s := openTestStore(t)
	s.nowMs = func() int64 { return 777 }
	ev := appendEvent(t, s, "ToolUse", "s1", 0, 0)
	if ev.TsMs != 777 {
		t.Fatalf("expected store-assigned timestamp, got %d", ev.TsMs)
	}
}

func TestDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	s, err := Open(db, logpkg.NewNopLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	first := appendEvent(t, s, "UserPromptSubmit", "s1", 100, 1)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	s2, err := Open(db2, logpkg.NewNopLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	next := appendEvent(t, s2, "ToolUse", "s1", 200, 0)
	if !(first.ID < next.ID) {
		t.Fatalf("id sequence not restored: %d then %d", first.ID, next.ID)
	}
	got, err := s2.Get(first.ID)
	if err != nil || got.Kind != "UserPromptSubmit" || got.Priority != 1 {
		t.Fatalf("stored event lost across reopen: %+v %v", got, err)
	}
	c := s2.Counts()
	if c.Total != 2 || c.Priority != 1 || c.Regular != 1 {
		t.Fatalf("counters not restored: %+v", c)
	}
}

func TestQueryBucketWindowAndOrder(t *testing.T) {
	s := openTestStore(t)
	appendEvent(t, s, "ToolUse", "s1", 100, 0)
	appendEvent(t, s, "ToolUse", "s1", 200, 0)
	appendEvent(t, s, "ToolUse", "s1", 300, 0)
	appendEvent(t, s, "UserPromptSubmit", "s1", 250, 1)

	got, err := s.QueryRegular(context.Background(), 150, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].TsMs != 300 || got[1].TsMs != 200 {
		t.Fatalf("expected newest-first regular events in window: %+v", got)
	}

	pri, err := s.QueryPriority(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("query priority: %v", err)
	}
	if len(pri) != 1 || pri[0].Kind != "UserPromptSubmit" {
		t.Fatalf("priority bucket wrong: %+v", pri)
	}
}

func TestQueryBucketLimit(t *testing.T) {
	s := openTestStore(t)
	for i := int64(0); i < 10; i++ {
		appendEvent(t, s, "ToolUse", "s1", 100+i, 0)
	}
	got, err := s.QueryRegular(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 || got[0].TsMs != 109 {
		t.Fatalf("limit/newest-first violated: %+v", got)
	}
}

func TestQuerySessionDualWindow(t *testing.T) {
	s := openTestStore(t)
	appendEvent(t, s, "ToolUse", "s1", 100, 0)           // regular, too old
	appendEvent(t, s, "UserPromptSubmit", "s1", 100, 1)  // priority, inside priority window
	appendEvent(t, s, "ToolUse", "s1", 500, 0)           // regular, inside window
	appendEvent(t, s, "ToolUse", "other", 600, 0)        // different session
	appendEvent(t, s, "Notification", "s1", 50, 1)       // priority, too old even for priority window

	got, err := s.QuerySession(context.Background(), SessionQuery{
		SessionID:       "s1",
		SincePriorityMs: 80,
		SinceRegularMs:  400,
	})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %+v", got)
	}
	if got[0].Kind != "UserPromptSubmit" || got[1].Kind != "ToolUse" {
		t.Fatalf("wrong events or order: %+v", got)
	}
	if !got[0].Less(got[1]) {
		t.Fatalf("session events not ascending")
	}
}

func TestQuerySessionKindsFilter(t *testing.T) {
	s := openTestStore(t)
	appendEvent(t, s, "ToolUse", "s1", 100, 0)
	appendEvent(t, s, "UserPromptSubmit", "s1", 200, 1)
	got, err := s.QuerySession(context.Background(), SessionQuery{
		SessionID: "s1",
		Kinds:     []string{"UserPromptSubmit"},
	})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	if len(got) != 1 || got[0].Kind != "UserPromptSubmit" {
		t.Fatalf("kinds filter failed: %+v", got)
	}
}
