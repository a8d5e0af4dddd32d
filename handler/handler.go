// Package handler is the Read API: chi routes over the state
// manager, scheduler, log store, and alert manager.
package handler

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"pulsewatch/alert"
	"pulsewatch/config"
	"pulsewatch/logstore"
	"pulsewatch/scheduler"
	"pulsewatch/state"
	"pulsewatch/store"
)

var validServiceNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _-]*$`)

type Handler struct {
	state      *state.Manager
	scheduler  *scheduler.Scheduler
	logs       *logstore.Store
	alerts     *alert.Manager
	cfg        *config.Config
	thresholds *config.ThresholdsStore
	audit      *store.DB
}

// New wires a Handler. audit may be nil when no database URL is
// configured, in which case GET /api/alerts?all=true falls back to
// the in-memory ring like a plain GET /api/alerts.
func New(sm *state.Manager, sch *scheduler.Scheduler, logs *logstore.Store, alerts *alert.Manager, cfg *config.Config, thresholds *config.ThresholdsStore, audit *store.DB) *Handler {
	return &Handler{
		state:      sm,
		scheduler:  sch,
		logs:       logs,
		alerts:     alerts,
		cfg:        cfg,
		thresholds: thresholds,
		audit:      audit,
	}
}

// ValidateServiceName is middleware that rejects requests whose :name
// path parameter is not a well-formed service name.
func ValidateServiceName(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name != "" && !validServiceNameRe.MatchString(name) {
			writeError(w, http.StatusBadRequest, "invalid service name")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, map[string]string{"error": message})
}
