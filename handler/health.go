package handler

import (
	"net/http"
	"time"
)

var processStart = time.Now()

// Health reports pulsewatch's own liveness, distinct from the health
// of the services it monitors.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(processStart).Seconds(),
		"timestamp": time.Now(),
	})
}
