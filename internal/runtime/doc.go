// Package runtime wires storage, classification, retention, and fan-out
// into a single-node instance with one open/close lifecycle.
package runtime
