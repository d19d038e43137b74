package event

import (
	"encoding/json"
	"sort"
)

// Priority tiers. Tier 0 is ordinary operational noise; tier 1 is high-value
// and eligible for the extended retention window. Tiers 2 and 3 are reserved.
const (
	PriorityRegular  = 0
	PriorityElevated = 1
	PriorityMax      = 3
)

// ClassificationMeta records how an event's priority tier was derived.
type ClassificationMeta struct {
	Rule         string `json:"rule"`
	BaseTier     int    `json:"base_tier"`
	OverrideTier int    `json:"override_tier,omitempty"`
}

// Event is a single observability event. ID, TsMs, and Priority are immutable
// once stored; ID is strictly increasing in insertion order and breaks ties
// between equal timestamps.
type Event struct {
	ID             uint64              `json:"id"`
	ProducerApp    string              `json:"producer_app"`
	SessionID      string              `json:"session_id"`
	Kind           string              `json:"kind"`
	Payload        json.RawMessage     `json:"payload,omitempty"`
	Transcript     json.RawMessage     `json:"transcript,omitempty"`
	Summary        string              `json:"summary,omitempty"`
	TsMs           int64               `json:"ts_ms"`
	Priority       int                 `json:"priority"`
	Classification *ClassificationMeta `json:"classification,omitempty"`
}

// IsPriority reports whether the event belongs to the priority bucket.
func (e Event) IsPriority() bool { return e.Priority > PriorityRegular }

// Less orders events ascending by (TsMs, ID).
func (e Event) Less(other Event) bool {
	if e.TsMs != other.TsMs {
		return e.TsMs < other.TsMs
	}
	return e.ID < other.ID
}

// SortAsc sorts events ascending by (TsMs, ID) in place.
func SortAsc(events []Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Less(events[j]) })
}
