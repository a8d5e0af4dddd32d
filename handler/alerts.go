package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pulsewatch/store"
)

// ListAlerts returns up to ?limit=N most recent alerts from the
// bounded in-memory ring. With ?all=true and an audit store
// configured, it instead serves the durable record from Postgres.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	if r.URL.Query().Get("all") == "true" && h.audit != nil {
		alerts, err := h.audit.ListAlerts(r.Context(), store.AlertFilter{Limit: limit})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, alerts)
		return
	}

	writeJSON(w, h.alerts.History(limit))
}

// MuteAlerts suppresses future alerts for a service.
func (h *Handler) MuteAlerts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.alerts.Mute(name)
	writeJSON(w, map[string]interface{}{"service": name, "muted": true})
}

// UnmuteAlerts resumes alerts for a service.
func (h *Handler) UnmuteAlerts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.alerts.Unmute(name)
	writeJSON(w, map[string]interface{}{"service": name, "muted": false})
}
