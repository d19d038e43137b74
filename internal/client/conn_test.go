package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pulsekit/pulse/internal/broadcast"
	"github.com/pulsekit/pulse/internal/event"
)

// These helpers run inside handler goroutines, so they never call t.Fatal.
func writeFrame(w http.ResponseWriter, env broadcast.Envelope) {
	b, _ := json.Marshal(env)
	fmt.Fprintf(w, "data: %s\n\n", b)
	w.(http.Flusher).Flush()
}

func initialEnvelope(events []event.Event, subscriberID string) broadcast.Envelope {
	data, _ := json.Marshal(events)
	return broadcast.Envelope{
		Type:         broadcast.TypeInitial,
		Data:         data,
		SubscriberID: subscriberID,
		PriorityInfo: &broadcast.PriorityInfo{TotalEvents: len(events)},
	}
}

func eventEnvelope(ev event.Event) broadcast.Envelope {
	data, _ := json.Marshal(ev)
	typ := broadcast.TypeEvent
	if ev.IsPriority() {
		typ = broadcast.TypePriorityEvent
	}
	return broadcast.Envelope{Type: typ, Data: data}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached")
}

func runConn(t *testing.T, cache *Cache, serverURL string) *Conn {
	t.Helper()
	conn := NewConn(cache, ConnOptions{
		URL:            serverURL,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return conn
}

func TestConnAppliesSnapshotThenLiveEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, initialEnvelope([]event.Event{
			{ID: 1, TsMs: 1, Priority: 0},
			{ID: 2, TsMs: 2, Priority: 1},
		}, "sub-1"))
		writeFrame(w, eventEnvelope(event.Event{ID: 3, TsMs: 3, Priority: 0}))
		<-r.Context().Done()
	}))
	// Cleanup, not defer: the conn must be cancelled (in runConn's cleanup)
	// before Close, or Close blocks on the still-streaming handler.
	t.Cleanup(srv.Close)

	cache := NewCache(DefaultConfig())
	conn := runConn(t, cache, srv.URL)

	waitFor(t, func() bool { return cache.CombinedView().TotalEvents == 3 })
	if conn.State() != StateLive {
		t.Fatalf("state: %s", conn.State())
	}
	if conn.SubscriberID() != "sub-1" {
		t.Fatalf("subscriber id: %q", conn.SubscriberID())
	}
	if info := cache.PriorityInfo(); info == nil || info.TotalEvents != 2 {
		t.Fatalf("priority info not applied: %+v", info)
	}
}

func TestConnReconnectsAndReplacesCache(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		n := attempt.Add(1)
		if n == 1 {
			writeFrame(w, initialEnvelope([]event.Event{{ID: 1, TsMs: 1}}, "sub-1"))
			writeFrame(w, eventEnvelope(event.Event{ID: 2, TsMs: 2}))
			return // server drops the stream
		}
		// fresh snapshot on reconnect: pre-disconnect events are gone
		writeFrame(w, initialEnvelope([]event.Event{{ID: 10, TsMs: 10}, {ID: 11, TsMs: 11}}, "sub-2"))
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	cache := NewCache(DefaultConfig())
	conn := runConn(t, cache, srv.URL)

	waitFor(t, func() bool {
		view := cache.CombinedView()
		return view.TotalEvents == 2 && view.Events[0].ID == 10 && view.Events[1].ID == 11
	})
	if conn.SubscriberID() != "sub-2" {
		t.Fatalf("subscriber id not refreshed: %q", conn.SubscriberID())
	}
	if attempt.Load() < 2 {
		t.Fatalf("no reconnect observed")
	}
}

func TestConnDropsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, initialEnvelope(nil, "sub-1"))
		fmt.Fprintf(w, "data: {not json\n\n")
		w.(http.Flusher).Flush()
		writeFrame(w, eventEnvelope(event.Event{ID: 5, TsMs: 5}))
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	cache := NewCache(DefaultConfig())
	runConn(t, cache, srv.URL)

	// the malformed frame is skipped, the following event still arrives
	waitFor(t, func() bool {
		view := cache.CombinedView()
		return view.TotalEvents == 1 && view.Events[0].ID == 5
	})
}

func TestConnSessionScopedURL(t *testing.T) {
	gotSessions := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSessions <- r.URL.Query().Get("session_ids")
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, initialEnvelope(nil, "sub-1"))
		<-r.Context().Done()
	}))
	defer srv.Close()

	cache := NewCache(DefaultConfig())
	conn := NewConn(cache, ConnOptions{
		URL:        srv.URL,
		SessionIDs: []string{"s1", "s2"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	select {
	case q := <-gotSessions:
		if q != "s1,s2" {
			t.Fatalf("session query param: %q", q)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no request observed")
	}
}
