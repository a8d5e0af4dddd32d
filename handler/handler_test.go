package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"pulsewatch/alert"
	"pulsewatch/bus"
	"pulsewatch/config"
	"pulsewatch/logstore"
	"pulsewatch/model"
	"pulsewatch/probe"
	"pulsewatch/scheduler"
	"pulsewatch/state"
)

func newTestHandler(t *testing.T) (*Handler, *bus.Bus, *state.Manager) {
	t.Helper()
	b := bus.New()
	th := config.NewThresholdsStore(model.DefaultThresholds())
	sm := state.NewManager(b, th.Fn())
	sched := scheduler.New(b, probe.NewRegistry(), th.Fn())
	sched.Start(context.Background(), nil)
	logs := logstore.New(t.TempDir(), nil)
	alerts := alert.NewManager(b)
	cfg := &config.Config{ConfigDir: t.TempDir(), Port: "8080"}

	h := New(sm, sched, logs, alerts, cfg, th, nil)
	t.Cleanup(sched.Stop)
	t.Cleanup(sm.Stop)
	return h, b, sm
}

func router(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/health", h.Health)
	r.Get("/api/services", h.ListServices)
	r.Get("/api/services/{name}", h.GetService)
	r.Get("/api/history/{name}", h.History)
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/config/thresholds", h.GetConfigThresholds)
	r.Post("/api/config/thresholds", h.UpdateConfigThresholds)
	r.Get("/api/alerts", h.ListAlerts)
	r.Post("/api/alerts/mute/{name}", h.MuteAlerts)
	r.Post("/api/alerts/unmute/{name}", h.UnmuteAlerts)
	r.Get("/api/scheduler", h.SchedulerStatus)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthReportsHealthy(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" {
		t.Fatalf("status = %v, want healthy", body["status"])
	}
}

func TestGetServiceUnknownReturns404(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/services/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetServiceReturnsSnapshotAndChecks(t *testing.T) {
	h, _, sm := newTestHandler(t)
	svc := model.Service{
		Name: "checkout", URL: "https://example.com", Tier: model.TierStandard,
		Checks: []model.Check{{Name: "basic", Strategy: model.StrategyBasic}},
	}
	sm.Register(svc)

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/services/checkout", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["name"] != "checkout" {
		t.Fatalf("name = %v, want checkout", body["name"])
	}
	if body["status"] != string(model.StatusHealthy) {
		t.Fatalf("status = %v, want healthy", body["status"])
	}
}

func TestGetServiceExposesRawBodyForDebugging(t *testing.T) {
	h, _, sm := newTestHandler(t)
	svc := model.Service{
		Name: "checkout", URL: "https://example.com", Tier: model.TierStandard,
		Checks: []model.Check{{Name: "basic", Strategy: model.StrategyBasic}},
	}
	sm.Register(svc)

	worker, ok := sm.Worker("checkout")
	if !ok {
		t.Fatal("worker not registered")
	}
	worker.Apply(model.EventHeartbeatReceived, model.HeartbeatResult{
		Service: "checkout", Success: true, HasResponse: true,
		Pulse:   model.Pulse{Status: model.StatusHealthy},
		RawBody: []byte(`{"status":"ok"}`),
	})

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/services/checkout", nil))

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["rawBody"] != `{"status":"ok"}` {
		t.Fatalf("rawBody = %v, want raw response body", body["rawBody"])
	}
}

func TestListServicesIncludesRegistered(t *testing.T) {
	h, _, sm := newTestHandler(t)
	sm.Register(model.Service{Name: "api", Checks: []model.Check{{Name: "basic", Strategy: model.StrategyBasic}}})

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))

	var body []model.Snapshot
	decodeBody(t, rec, &body)
	if len(body) != 1 || body[0].Name != "api" {
		t.Fatalf("got %+v", body)
	}
}

func TestHistoryDefaultsTo24Hours(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/checkout", nil))

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["hours"] != float64(24) {
		t.Fatalf("hours = %v, want 24", body["hours"])
	}
}

func TestUpdateThresholdsRejectsMissingField(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"healthy":200,"warning":500}`)
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/thresholds", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateThresholdsAppliesHotly(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"healthy":150,"warning":450,"degraded":900}`)
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/thresholds", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	got := h.thresholds.Get()
	if got.HealthyMax != 150 {
		t.Fatalf("HealthyMax = %d, want 150", got.HealthyMax)
	}
	if got.WarningMax != 450 {
		t.Fatalf("WarningMax = %d, want 450", got.WarningMax)
	}
	if got.DefaultFlatlineCount != 900 {
		t.Fatalf("DefaultFlatlineCount = %d, want 900", got.DefaultFlatlineCount)
	}

	rec = httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config/thresholds", nil))
	var roundTripped model.Thresholds
	decodeBody(t, rec, &roundTripped)
	if roundTripped.DefaultFlatlineCount != 900 {
		t.Fatalf("GET after POST DefaultFlatlineCount = %d, want 900", roundTripped.DefaultFlatlineCount)
	}
}

func TestMuteThenUnmuteRoundTrips(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alerts/mute/checkout", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("mute status = %d", rec.Code)
	}
	if !h.alerts.IsMuted("checkout") {
		t.Fatal("expected checkout to be muted")
	}

	rec = httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alerts/unmute/checkout", nil))
	if h.alerts.IsMuted("checkout") {
		t.Fatal("expected checkout to be unmuted")
	}
}

func TestListAlertsEmptyInitially(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	var body []model.Alert
	decodeBody(t, rec, &body)
	if len(body) != 0 {
		t.Fatalf("got %d alerts, want 0", len(body))
	}
}

func TestListAlertsAllTrueFallsBackToRingWithoutAuditStore(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts?all=true", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []model.Alert
	decodeBody(t, rec, &body)
	if len(body) != 0 {
		t.Fatalf("got %d alerts, want 0", len(body))
	}
}

func TestSchedulerStatusReportsRunning(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scheduler", nil))

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["running"] != true {
		t.Fatalf("running = %v, want true", body["running"])
	}
}
