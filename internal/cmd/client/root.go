package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewEventsCommand constructs the `events` command group and subcommands.
func NewEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	eventsCmd := &cobra.Command{Use: "events", Short: "Event operations"}
	eventsCmd.AddCommand(
		newAppendCommand(baseURL),
		newRecentCommand(baseURL),
		newSearchCommand(baseURL),
		newSessionCommand(baseURL),
		newTailCommand(baseURL),
		newStatsCommand(baseURL),
	)
	return eventsCmd
}
