package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListServices returns every monitored service's Read-API snapshot.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.state.Snapshots())
}

// GetService returns one service's snapshot plus its check list and
// today's log summary; 404 when the service is unknown.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	worker, ok := h.state.Worker(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service: "+name)
		return
	}

	st := worker.State()
	snap := st.Snapshot()
	writeJSON(w, map[string]interface{}{
		"name":                snap.Name,
		"url":                 snap.URL,
		"tier":                snap.Tier,
		"probeInterval":       snap.ProbeInterval,
		"status":              snap.Status,
		"lastCheck":           snap.LastCheck,
		"lastSuccess":         snap.LastSuccess,
		"consecutiveFailures": snap.ConsecutiveFailures,
		"isFlatlined":         snap.IsFlatlined,
		"uptime":              snap.Uptime,
		"httpStatus":          snap.HTTPStatus,
		"checks":              st.Service.Checks,
		"summary":             h.logs.Summary(name),
		"rawBody":             string(st.LastRawBody),
	})
}

// History returns the last ?hours=N (default 24) heartbeat entries
// for a service.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	writeJSON(w, map[string]interface{}{
		"service": name,
		"hours":   hours,
		"entries": h.logs.History(name, hours),
	})
}

// TriggerCheck runs every check for a service immediately, ahead of
// its scheduled cadence, and returns the results.
func (h *Handler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.state.Worker(name); !ok {
		writeError(w, http.StatusNotFound, "unknown service: "+name)
		return
	}
	results := h.scheduler.TriggerCheck(name)
	writeJSON(w, map[string]interface{}{"service": name, "results": results})
}
