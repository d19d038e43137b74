// Package httpserver exposes the HTTP API: event ingestion, bounded recent
// and session queries, and SSE subscription streams.
package httpserver
