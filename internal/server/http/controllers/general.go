package controllers

import (
	"net/http"

	"github.com/pulsekit/pulse/internal/runtime"
)

// GeneralController handles health and stats endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/stats", c.handleStats)
}

// handleHealth returns 200 with {"status":"ok"} when storage is reachable,
// 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStats reports bucket occupancy, the retention policy, and the number
// of attached subscribers.
func (c *GeneralController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	counts := c.rt.Store().Counts()
	writeJSON(w, map[string]any{
		"total_events":    counts.Total,
		"priority_events": counts.Priority,
		"regular_events":  counts.Regular,
		"last_id":         c.rt.Store().LastID(),
		"subscribers":     c.rt.Broadcaster().Registry().Len(),
		"retention":       c.rt.Config().Retention,
	})
}
