package broadcast

import (
	"encoding/json"

	"github.com/pulsekit/pulse/internal/event"
	"github.com/pulsekit/pulse/internal/retention"
)

// EnvelopeType discriminates wire envelopes.
type EnvelopeType string

const (
	TypeEvent                EnvelopeType = "event"
	TypePriorityEvent        EnvelopeType = "priorityEvent"
	TypeSessionEvent         EnvelopeType = "sessionEvent"
	TypePrioritySessionEvent EnvelopeType = "prioritySessionEvent"
	TypeInitial              EnvelopeType = "initial"
)

// RetentionWindow mirrors the server's retention windows for consumers.
type RetentionWindow struct {
	PriorityHours int `json:"priority_hours"`
	RegularHours  int `json:"regular_hours"`
}

// PriorityInfo annotates envelopes with bucket occupancy and the retention
// policy; sent on initial and periodically thereafter.
type PriorityInfo struct {
	TotalEvents     int             `json:"total_events"`
	PriorityEvents  int             `json:"priority_events"`
	RegularEvents   int             `json:"regular_events"`
	RetentionWindow RetentionWindow `json:"retention_window"`
}

// Envelope is the wire-level wrapper carrying one event (live) or an event
// array (initial snapshot) to a subscriber.
type Envelope struct {
	Type         EnvelopeType    `json:"type"`
	Data         json.RawMessage `json:"data"`
	SessionID    string          `json:"session_id,omitempty"`
	SubscriberID string          `json:"subscriber_id,omitempty"`
	PriorityInfo *PriorityInfo   `json:"priority_info,omitempty"`
}

// eventType picks the envelope type for a live event by scope and priority.
func eventType(ev event.Event, sessionScoped bool) EnvelopeType {
	switch {
	case sessionScoped && ev.IsPriority():
		return TypePrioritySessionEvent
	case sessionScoped:
		return TypeSessionEvent
	case ev.IsPriority():
		return TypePriorityEvent
	default:
		return TypeEvent
	}
}

// newEventEnvelope wraps a live event. The marshaled event is shared between
// the global and session variants of the same broadcast.
func newEventEnvelope(ev event.Event, data json.RawMessage, sessionScoped bool, info *PriorityInfo) Envelope {
	env := Envelope{Type: eventType(ev, sessionScoped), Data: data, PriorityInfo: info}
	if sessionScoped {
		env.SessionID = ev.SessionID
	}
	return env
}

// newInitialEnvelope wraps a snapshot BucketView.
func newInitialEnvelope(view retention.BucketView, info *PriorityInfo, subscriberID string) (Envelope, error) {
	events := view.Events
	if events == nil {
		events = []event.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:         TypeInitial,
		Data:         data,
		SubscriberID: subscriberID,
		PriorityInfo: info,
	}, nil
}
