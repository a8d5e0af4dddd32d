package handler

import "net/http"

// SchedulerStatus reports every scheduled (service, check) activity
// and its next invocation time.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"running": true,
		"jobs":    h.scheduler.Statuses(),
	})
}
