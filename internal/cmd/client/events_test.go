package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func execute(t *testing.T, srvURL string, args ...string) string {
	t.Helper()
	cmd := NewEventsCommand(func() string { return srvURL })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestRecentCommandBuildsQuery(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("total_limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[],"total_events":0}`))
	}))
	defer srv.Close()

	out := execute(t, srv.URL, "recent", "--total-limit", "50")
	if gotPath != "/v1/events/recent" || gotQuery != "50" {
		t.Fatalf("request wrong: %s ? total_limit=%s", gotPath, gotQuery)
	}
	if out == "" {
		t.Fatalf("no output")
	}
}

func TestAppendCommandPostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	execute(t, srv.URL, "append", "--kind", "ToolUse", "--session", "s1", "--payload", `{"tool":"bash"}`)
	if got["kind"] != "ToolUse" || got["session_id"] != "s1" {
		t.Fatalf("body wrong: %+v", got)
	}
}

func TestAppendCommandRequiresKind(t *testing.T) {
	cmd := NewEventsCommand(func() string { return "http://127.0.0.1:0" })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"append"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without --kind")
	}
}

func TestAppendCommandRejectsBadPayload(t *testing.T) {
	cmd := NewEventsCommand(func() string { return "http://127.0.0.1:0" })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"append", "--kind", "ToolUse", "--payload", "{nope"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}
