package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulsewatch/bus"
	"pulsewatch/model"
	"pulsewatch/probe"
)

func TestRunEmitsSentThenReceivedOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	b := bus.New()
	var seen []string
	b.Subscribe(model.EventHeartbeatSent, func(interface{}) { seen = append(seen, model.EventHeartbeatSent) })
	b.Subscribe(model.EventHeartbeatReceived, func(interface{}) { seen = append(seen, model.EventHeartbeatReceived) })
	b.Subscribe(model.EventHeartbeatFailed, func(interface{}) { seen = append(seen, model.EventHeartbeatFailed) })

	svc := model.Service{Name: "svc", URL: srv.URL, Tier: model.TierStandard}
	check := model.Check{Name: "basic", Strategy: model.StrategyBasic}

	result := Run(context.Background(), b, probe.NewRegistry(), model.DefaultThresholds(), svc, check)

	if len(seen) != 2 || seen[0] != model.EventHeartbeatSent || seen[1] != model.EventHeartbeatReceived {
		t.Fatalf("got %v", seen)
	}
	if !result.Success || result.Pulse.Status != model.StatusHealthy {
		t.Fatalf("got %+v", result)
	}
}

func TestRunEmitsFailedOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	b := bus.New()
	var gotFailed bool
	b.Subscribe(model.EventHeartbeatFailed, func(interface{}) { gotFailed = true })

	svc := model.Service{Name: "svc", URL: srv.URL, Tier: model.TierStandard}
	check := model.Check{Name: "basic", Strategy: model.StrategyBasic}

	result := Run(context.Background(), b, probe.NewRegistry(), model.DefaultThresholds(), svc, check)

	if !gotFailed {
		t.Fatal("expected heartbeat_failed to be published")
	}
	if result.Success || !result.HasResponse {
		t.Fatalf("got %+v", result)
	}
}

func TestRunUnknownStrategySynthesizesFlatlineTaggedFailure(t *testing.T) {
	b := bus.New()
	var result model.HeartbeatResult
	b.Subscribe(model.EventHeartbeatFailed, func(p interface{}) { result = p.(model.HeartbeatResult) })

	svc := model.Service{Name: "svc", URL: "http://example.invalid", Tier: model.TierStandard}
	check := model.Check{Name: "mystery", Strategy: "made-up"}

	Run(context.Background(), b, probe.NewRegistry(), model.DefaultThresholds(), svc, check)

	if result.Pulse.Status != model.StatusFlatline {
		t.Fatalf("Pulse.Status = %v, want flatline", result.Pulse.Status)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
}
