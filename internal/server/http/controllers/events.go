package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulsekit/pulse/internal/broadcast"
	"github.com/pulsekit/pulse/internal/event"
	"github.com/pulsekit/pulse/internal/filter"
	"github.com/pulsekit/pulse/internal/retention"
	"github.com/pulsekit/pulse/internal/runtime"
	"github.com/pulsekit/pulse/internal/store"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// maxFilterLen bounds CEL filter expressions to avoid abuse.
const maxFilterLen = 2048

// EventsController handles ingestion, queries, and subscription streams.
type EventsController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime, logger logpkg.Logger) *EventsController {
	return &EventsController{rt: rt, logger: logger.WithComponent("http.events")}
}

// RegisterRoutes registers event routes with the given mux.
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events", c.handleAppend)
	mux.HandleFunc("/v1/events/recent", c.handleRecent)
	mux.HandleFunc("/v1/events/search", c.handleSearch)
	mux.HandleFunc("/v1/sessions/events", c.handleSessionEvents)
	mux.HandleFunc("/v1/subscribe/events", c.handleSubscribeGlobal)
	mux.HandleFunc("/v1/subscribe/sessions", c.handleSubscribeSessions)
	mux.HandleFunc("/v1/subscribe/control", c.handleControl)
}

// handleAppend ingests one event: classify, persist, fan out. Returns the
// stored form with id, timestamp, and priority assigned.
func (c *EventsController) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req appendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}
	stored, err := c.rt.Broadcaster().Append(r.Context(), event.Event{
		ProducerApp: req.ProducerApp,
		SessionID:   req.SessionID,
		Kind:        req.Kind,
		Payload:     req.Payload,
		Transcript:  req.Transcript,
		Summary:     req.Summary,
		TsMs:        req.TsMs,
	})
	if err != nil {
		c.logger.Error("append failed", logpkg.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to append event")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(stored)
}

// handleRecent returns the bounded dual-bucket view. Query params override
// the process retention policy per-request: total_limit, priority_limit,
// regular_limit, priority_retention_hours, regular_retention_hours.
func (c *EventsController) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	cfg := c.rt.Selector().Config()
	overrideInt(&cfg.TotalLimit, q.Get("total_limit"))
	overrideInt(&cfg.PriorityLimit, q.Get("priority_limit"))
	overrideInt(&cfg.RegularLimit, q.Get("regular_limit"))
	overrideInt(&cfg.PriorityRetentionHours, q.Get("priority_retention_hours"))
	overrideInt(&cfg.RegularRetentionHours, q.Get("regular_retention_hours"))

	view, err := c.rt.Selector().SelectWithConfig(r.Context(), cfg)
	if err != nil {
		c.logger.Error("recent query failed", logpkg.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to query events")
		return
	}
	writeJSON(w, view)
}

// handleSearch filters the current retention view with a CEL expression.
func (c *EventsController) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	expr := r.URL.Query().Get("filter")
	if len(expr) > maxFilterLen {
		writeError(w, http.StatusBadRequest, "Filter too long")
		return
	}
	f, err := filter.New(expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter expression")
		return
	}
	view, err := c.rt.Selector().Select(r.Context())
	if err != nil {
		c.logger.Error("search query failed", logpkg.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to query events")
		return
	}
	matched := make([]event.Event, 0, len(view.Events))
	for _, ev := range view.Events {
		if f.Eval(ev) {
			matched = append(matched, ev)
		}
	}
	if limit := parseLimit(r.URL.Query().Get("limit")); limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	writeJSON(w, retention.NewBucketView(matched))
}

// handleSessionEvents returns one session's events ascending, honoring the
// same dual-window policy as the recent view: each bucket's window is
// applied first, then the optional kind and CEL filters.
func (c *EventsController) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	expr := q.Get("filter")
	if len(expr) > maxFilterLen {
		writeError(w, http.StatusBadRequest, "Filter too long")
		return
	}
	f, err := filter.New(expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter expression")
		return
	}

	cfg := c.rt.Selector().Config()
	now := time.Now()
	events, err := c.rt.Store().QuerySession(r.Context(), store.SessionQuery{
		SessionID:       sessionID,
		Kinds:           splitList(q.Get("kinds")),
		SincePriorityMs: now.Add(-cfg.PriorityWindow()).UnixMilli(),
		SinceRegularMs:  now.Add(-cfg.RegularWindow()).UnixMilli(),
		Limit:           parseLimit(q.Get("limit")),
	})
	if err != nil {
		c.logger.Error("session query failed", logpkg.Err(err), logpkg.Str("session_id", sessionID))
		writeError(w, http.StatusInternalServerError, "Failed to query session events")
		return
	}
	if f.Enabled() {
		matched := events[:0]
		for _, ev := range events {
			if f.Eval(ev) {
				matched = append(matched, ev)
			}
		}
		events = matched
	}
	writeJSON(w, retention.NewBucketView(events))
}

// handleSubscribeGlobal streams every event over SSE, preceded by an
// initial snapshot envelope.
func (c *EventsController) handleSubscribeGlobal(w http.ResponseWriter, r *http.Request) {
	c.serveStream(w, r, broadcast.ScopeGlobal, nil)
}

// handleSubscribeSessions streams session-scoped events over SSE. The
// initial interest set comes from the session_ids query param; control
// requests mutate it afterwards.
func (c *EventsController) handleSubscribeSessions(w http.ResponseWriter, r *http.Request) {
	c.serveStream(w, r, broadcast.ScopeSession, splitList(r.URL.Query().Get("session_ids")))
}

func (c *EventsController) serveStream(w http.ResponseWriter, r *http.Request, scope broadcast.Scope, sessionIDs []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sub, err := c.rt.Broadcaster().Connect(r.Context(), scope, sessionIDs)
	if err != nil {
		c.logger.Error("subscribe failed", logpkg.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to subscribe")
		return
	}
	defer c.rt.Broadcaster().Disconnect(sub.ID())

	sseHeaders(w)
	sink := sseSink{w: w}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case env := <-sub.Events():
			if err := sink.Send(env); err != nil {
				return
			}
		}
	}
}

// handleControl mutates a session-scoped subscriber's interest set. Takes
// effect for events broadcast after the call only.
func (c *EventsController) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req controlReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sub, ok := c.rt.Broadcaster().Registry().Get(req.SubscriberID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown subscriber")
		return
	}
	switch req.Action {
	case "subscribe":
		sub.Subscribe(req.SessionIDs...)
	case "unsubscribe":
		sub.Unsubscribe(req.SessionIDs...)
	default:
		writeError(w, http.StatusBadRequest, "Action must be subscribe or unsubscribe")
		return
	}
	writeJSON(w, map[string]any{
		"subscriber_id": sub.ID(),
		"sessions":      sub.Interest(),
	})
}
