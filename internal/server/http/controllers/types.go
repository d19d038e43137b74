package controllers

import "encoding/json"

// Common request types for HTTP controllers

// appendReq represents an ingestion request. ID, priority, and
// classification are server-assigned and ignored if present.
type appendReq struct {
	ProducerApp string          `json:"producer_app"`
	SessionID   string          `json:"session_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Transcript  json.RawMessage `json:"transcript"`
	Summary     string          `json:"summary"`
	TsMs        int64           `json:"ts_ms"`
}

// controlReq mutates a session-scoped subscriber's interest set.
type controlReq struct {
	SubscriberID string   `json:"subscriber_id"`
	Action       string   `json:"action"` // subscribe|unsubscribe
	SessionIDs   []string `json:"session_ids"`
}
