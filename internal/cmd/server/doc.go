// Package serverrun starts and supervises the server process: runtime,
// retention purger, and HTTP transport.
package serverrun
