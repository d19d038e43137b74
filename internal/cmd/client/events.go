package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pulsekit/pulse/internal/broadcast"
	pulseclient "github.com/pulsekit/pulse/internal/client"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// newAppendCommand constructs the `events append` subcommand.
func newAppendCommand(baseURL BaseURLFunc) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append one event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			session, _ := cmd.Flags().GetString("session")
			producer, _ := cmd.Flags().GetString("producer")
			payload, _ := cmd.Flags().GetString("payload")
			summary, _ := cmd.Flags().GetString("summary")
			if kind == "" {
				return fmt.Errorf("--kind is required")
			}
			body := map[string]any{
				"producer_app": producer,
				"session_id":   session,
				"kind":         kind,
				"summary":      summary,
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload must be valid JSON")
				}
				body["payload"] = json.RawMessage(payload)
			}
			b, _ := json.Marshal(body)
			resp, err := http.Post(baseURL()+"/v1/events", "application/json", bytes.NewReader(b))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("append failed: %s", resp.Status)
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	appendCmd.Flags().String("kind", "", "Event kind (required)")
	appendCmd.Flags().StringP("session", "s", "", "Session id")
	appendCmd.Flags().String("producer", "pulse-cli", "Producer application name")
	appendCmd.Flags().String("payload", "", "Event payload as JSON")
	appendCmd.Flags().String("summary", "", "One-line summary")
	return appendCmd
}

// newRecentCommand constructs the `events recent` subcommand.
func newRecentCommand(baseURL BaseURLFunc) *cobra.Command {
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the bounded dual-bucket view of recent events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for flag, param := range map[string]string{
				"total-limit":    "total_limit",
				"priority-limit": "priority_limit",
				"regular-limit":  "regular_limit",
				"priority-hours": "priority_retention_hours",
				"regular-hours":  "regular_retention_hours",
			} {
				if v, _ := cmd.Flags().GetInt(flag); v > 0 {
					q.Set(param, strconv.Itoa(v))
				}
			}
			return getJSON(cmd, baseURL()+"/v1/events/recent?"+q.Encode())
		},
	}
	recentCmd.Flags().Int("total-limit", 0, "Override total event limit")
	recentCmd.Flags().Int("priority-limit", 0, "Override priority bucket limit")
	recentCmd.Flags().Int("regular-limit", 0, "Override regular bucket limit")
	recentCmd.Flags().Int("priority-hours", 0, "Override priority retention window (hours)")
	recentCmd.Flags().Int("regular-hours", 0, "Override regular retention window (hours)")
	return recentCmd
}

// newSearchCommand constructs the `events search` subcommand.
func newSearchCommand(baseURL BaseURLFunc) *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Filter recent events with a CEL expression",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			if filter != "" {
				q.Set("filter", filter)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return getJSON(cmd, baseURL()+"/v1/events/search?"+q.Encode())
		},
	}
	searchCmd.Flags().String("filter", "", `CEL filter, e.g. kind == "ToolUse" && priority > 0`)
	searchCmd.Flags().Int("limit", 0, "Keep only the newest N matches")
	return searchCmd
}

// newSessionCommand constructs the `events session` subcommand.
func newSessionCommand(baseURL BaseURLFunc) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Show one session's events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			kinds, _ := cmd.Flags().GetString("kinds")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			q := url.Values{}
			q.Set("session_id", id)
			if kinds != "" {
				q.Set("kinds", kinds)
			}
			if filter != "" {
				q.Set("filter", filter)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return getJSON(cmd, baseURL()+"/v1/sessions/events?"+q.Encode())
		},
	}
	sessionCmd.Flags().String("id", "", "Session id (required)")
	sessionCmd.Flags().String("kinds", "", "Comma-separated kind whitelist")
	sessionCmd.Flags().String("filter", "", "CEL filter (server-side)")
	sessionCmd.Flags().Int("limit", 0, "Stop after N events")
	return sessionCmd
}

// newStatsCommand constructs the `events stats` subcommand.
func newStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show bucket occupancy and subscriber counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getJSON(cmd, baseURL()+"/v1/stats")
		},
	}
}

// newTailCommand constructs the `events tail` subcommand. It runs the full
// client connection (snapshot, live stream, reconnect with backoff) and
// prints events as they land in the local cache.
func newTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the live event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, _ := cmd.Flags().GetString("sessions")

			endpoint := baseURL() + "/v1/subscribe/events"
			var sessionIDs []string
			if sessions != "" {
				endpoint = baseURL() + "/v1/subscribe/sessions"
				sessionIDs = strings.Split(sessions, ",")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			cache := pulseclient.NewCache(pulseclient.DefaultConfig())
			conn := pulseclient.NewConn(cache, pulseclient.ConnOptions{
				URL:        endpoint,
				SessionIDs: sessionIDs,
				Logger:     logpkg.NewLogger(logpkg.WithLevel(logpkg.WarnLevel), logpkg.WithFormatter(&logpkg.TextFormatter{})),
				OnEnvelope: func(env broadcast.Envelope) {
					_ = enc.Encode(env)
				},
			})
			err := conn.Run(cmd.Context())
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	tailCmd.Flags().String("sessions", "", "Comma-separated session ids (session-scoped stream)")
	return tailCmd
}

// getJSON fetches a URL and streams the JSON body to stdout.
func getJSON(cmd *cobra.Command, target string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	}
	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	return err
}
