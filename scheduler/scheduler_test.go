package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pulsewatch/bus"
	"pulsewatch/model"
	"pulsewatch/probe"
)

func TestTriggerCheckRunsImmediately(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	b := bus.New()
	s := New(b, probe.NewRegistry(), model.DefaultThresholds)

	svc := model.Service{
		Name: "svc", URL: srv.URL, Tier: model.TierStandard, ProbeInterval: 3600,
		Checks: []model.Check{{Name: "basic", Strategy: model.StrategyBasic}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []model.Service{svc})
	defer s.Stop()

	results := s.TriggerCheck("svc")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].Success {
		t.Fatalf("got %+v", results[0])
	}
	if hits.Load() == 0 {
		t.Fatal("no probe observed after TriggerCheck")
	}
}

func TestTriggerCheckRunsAllChecksConcurrently(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	b := bus.New()
	s := New(b, probe.NewRegistry(), model.DefaultThresholds)

	svc := model.Service{
		Name: "svc", URL: srv.URL, Tier: model.TierStandard, ProbeInterval: 3600,
		Checks: []model.Check{
			{Name: "basic", Strategy: model.StrategyBasic},
			{Name: "query", Strategy: model.StrategyQuery, Query: "{ ok }"},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []model.Service{svc})
	defer s.Stop()

	results := s.TriggerCheck("svc")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestPauseThenResumeReinstallsWorker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	b := bus.New()
	s := New(b, probe.NewRegistry(), model.DefaultThresholds)

	svc := model.Service{
		Name: "svc", URL: srv.URL, Tier: model.TierStandard, ProbeInterval: 3600,
		Checks: []model.Check{{Name: "basic", Strategy: model.StrategyBasic}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []model.Service{svc})
	defer s.Stop()

	s.PauseService("svc")
	if len(s.Statuses()) != 0 {
		t.Fatalf("expected no active activities while paused, got %+v", s.Statuses())
	}
	if got := s.TriggerCheck("svc"); got != nil {
		t.Fatalf("expected nil result for a paused worker, got %+v", got)
	}

	s.ResumeService("svc")
	if len(s.Statuses()) != 1 {
		t.Fatalf("expected worker reinstalled after resume, got %+v", s.Statuses())
	}

	results := s.TriggerCheck("svc")
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("got %+v", results)
	}
}

func TestTriggerCheckUnknownServiceReturnsNil(t *testing.T) {
	b := bus.New()
	s := New(b, probe.NewRegistry(), model.DefaultThresholds)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, nil)
	defer s.Stop()

	if got := s.TriggerCheck("nope"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestStatusesReflectsActiveActivities(t *testing.T) {
	b := bus.New()
	s := New(b, probe.NewRegistry(), model.DefaultThresholds)

	svc := model.Service{
		Name: "svc", URL: "http://example.invalid", Tier: model.TierCritical, ProbeInterval: 15,
		Checks: []model.Check{{Name: "basic", Strategy: model.StrategyBasic}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, []model.Service{svc})
	defer s.Stop()

	statuses := s.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if statuses[0].Key != "svc/basic" {
		t.Fatalf("got key %q, want svc/basic", statuses[0].Key)
	}
	if statuses[0].NextInvocation.Before(time.Now()) {
		t.Fatalf("nextInvocation %v is in the past", statuses[0].NextInvocation)
	}
}
