// Package config loads server and client configuration from JSON files with
// PULSE_* environment overlays.
package config
