package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/pulsekit/pulse/internal/broadcast"
)

// sseSink formats envelopes as Server-Sent Events.
type sseSink struct {
	w http.ResponseWriter
}

// Send JSON-encodes the envelope with the "data: " prefix followed by two
// newlines as required by the SSE specification, then flushes.
func (s sseSink) Send(env broadcast.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}
