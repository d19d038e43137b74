// Package client implements the pulse CLI's client-side command groups.
package client
