package handler

import (
	"encoding/json"
	"net/http"

	"pulsewatch/model"
	"pulsewatch/validate"
)

// GetConfig returns the effective server/monitoring/alerts
// configuration.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.cfg.AsSystemConfig())
}

// GetConfigServices returns the services currently on disk.
func (h *Handler) GetConfigServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.cfg.LoadServices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"services": services})
}

// GetConfigThresholds returns the live, in-memory thresholds.
func (h *Handler) GetConfigThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.thresholds.Get())
}

// GetConfigAudio returns whether client-side alert sounds are enabled.
func (h *Handler) GetConfigAudio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"audio": h.cfg.AudioEnabled})
}

type updateServicesRequest struct {
	Services []model.Service `json:"services"`
}

// UpdateConfigServices validates and persists a full services array.
// The scheduler does not hot-reload service intervals or check sets,
// so the response tells the caller a restart is required.
func (h *Handler) UpdateConfigServices(w http.ResponseWriter, r *http.Request) {
	var req updateServicesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	results := validate.Services(req.Services)
	for _, res := range results {
		if !res.Valid() {
			writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
				"success": false, "message": "validation failed", "results": results,
			})
			return
		}
	}

	if err := h.cfg.SaveServices(req.Services); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"message": "services saved; restart pulsewatch to apply",
	})
}

type updateThresholdsRequest struct {
	Healthy  *float64 `json:"healthy"`
	Warning  *float64 `json:"warning"`
	Degraded *float64 `json:"degraded"`
}

// UpdateConfigThresholds validates and hot-applies a new healthy/
// warning/degraded triple, and persists it to thresholds.json.
func (h *Handler) UpdateConfigThresholds(w http.ResponseWriter, r *http.Request) {
	var req updateThresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	present := map[string]bool{
		"healthy":  req.Healthy != nil,
		"warning":  req.Warning != nil,
		"degraded": req.Degraded != nil,
	}
	var healthy, warning, degraded float64
	if req.Healthy != nil {
		healthy = *req.Healthy
	}
	if req.Warning != nil {
		warning = *req.Warning
	}
	if req.Degraded != nil {
		degraded = *req.Degraded
	}

	result := validate.Thresholds(healthy, warning, degraded, present)
	if !result.Valid() {
		writeJSONStatus(w, http.StatusBadRequest, result)
		return
	}

	current := h.thresholds.Get()
	current.HealthyMax = int(healthy)
	current.WarningMax = int(warning)
	current.DefaultFlatlineCount = int(degraded)
	h.thresholds.Set(current)

	if err := h.cfg.SaveThresholds(int(healthy), int(warning), int(degraded), current.Tiers); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]interface{}{"success": true, "thresholds": current})
}
