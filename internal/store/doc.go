// Package store persists events on Pebble and serves the range queries the
// retention selector and session endpoints are built on: newest-first
// per-bucket scans and ascending per-session scans, plus batched purging of
// entries past their retention window.
package store
