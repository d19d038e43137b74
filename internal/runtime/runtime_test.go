package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/pulsekit/pulse/internal/config"
	"github.com/pulsekit/pulse/internal/event"
)

func openTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "never"
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenAndHealth(t *testing.T) {
	rt := openTestRuntime(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Retention.PriorityShare = 2
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestAppendThroughBroadcasterClassifies(t *testing.T) {
	rt := openTestRuntime(t)
	ev, err := rt.Broadcaster().Append(context.Background(), event.Event{
		SessionID: "s1",
		Kind:      "UserPromptSubmit",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ev.Priority != event.PriorityElevated {
		t.Fatalf("classification not wired: %+v", ev)
	}
	got, err := rt.Store().Get(ev.ID)
	if err != nil || got.Kind != "UserPromptSubmit" {
		t.Fatalf("store not wired: %+v %v", got, err)
	}
}

func TestClassifierOverridesFromConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "never"
	cfg.Classifier = map[string]int{"Deploy": 1}
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	ev, err := rt.Broadcaster().Append(context.Background(), event.Event{Kind: "Deploy"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !ev.IsPriority() {
		t.Fatalf("override not applied: %+v", ev)
	}
}
