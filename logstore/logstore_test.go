package logstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pulsewatch/bus"
	"pulsewatch/model"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	return New(dir, nil)
}

func TestAppendHeartbeatRecomputesSummary(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.AppendHeartbeat("svc", model.HeartbeatResult{
		Service: "svc", Timestamp: now, Success: true, ResponseTime: 100,
		Pulse: model.Pulse{Status: model.StatusHealthy},
	})
	s.AppendHeartbeat("svc", model.HeartbeatResult{
		Service: "svc", Timestamp: now.Add(time.Second), Success: false, ResponseTime: 50,
	})

	summary := s.Summary("svc")
	if summary.CheckCount != 2 || summary.SuccessCount != 1 || summary.FailureCount != 1 {
		t.Fatalf("got %+v", summary)
	}
	if summary.AvgResponseTime != 100 {
		t.Fatalf("avgResponseTime = %v, want 100", summary.AvgResponseTime)
	}
	if summary.Uptime != 50 {
		t.Fatalf("uptime = %v, want 50", summary.Uptime)
	}
}

func TestSummaryIsZeroForAbsentService(t *testing.T) {
	s := newTestStore(t)
	summary := s.Summary("nobody")
	if summary.Uptime != 100 || summary.CheckCount != 0 {
		t.Fatalf("got %+v", summary)
	}
}

func TestHistoryFiltersToWindowAndSortsAscending(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.AppendHeartbeat("svc", model.HeartbeatResult{Service: "svc", Timestamp: now.Add(-2 * time.Hour), Success: true})
	s.AppendHeartbeat("svc", model.HeartbeatResult{Service: "svc", Timestamp: now.Add(-30 * time.Minute), Success: true})
	s.AppendHeartbeat("svc", model.HeartbeatResult{Service: "svc", Timestamp: now, Success: true})

	entries := s.History("svc", 1)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (within the last hour)", len(entries))
	}
	if !entries[0].Timestamp.Before(entries[1].Timestamp) {
		t.Fatalf("entries not sorted ascending: %+v", entries)
	}
}

func TestSanitizeReplacesWhitespace(t *testing.T) {
	if got := sanitize("my service"); got != "my_service" {
		t.Fatalf("sanitize = %q, want my_service", got)
	}
}

func TestPersistWritesReadableJSON(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.AppendHeartbeat("svc", model.HeartbeatResult{Service: "svc", Timestamp: now, Success: true, ResponseTime: 42})

	path := s.pathFor("svc", now.Format("2006-01-02"))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var doc model.LogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Heartbeats) != 1 {
		t.Fatalf("got %+v", doc)
	}
}

type fakeArchiver struct {
	archived []string
}

func (f *fakeArchiver) Archive(localPath, service, date string) error {
	f.archived = append(f.archived, localPath)
	return nil
}

func TestRotateDeletesStaleFilesAndArchivesFirst(t *testing.T) {
	dir := t.TempDir()
	archiver := &fakeArchiver{}
	s := New(dir, archiver)

	stalePath := filepath.Join(dir, "svc-2020-01-01.json")
	if err := os.WriteFile(stalePath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatal(err)
	}

	s.AppendHeartbeat("fresh", model.HeartbeatResult{Service: "fresh", Timestamp: time.Now(), Success: true})

	s.Rotate(24 * time.Hour)

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatalf("expected stale file removed, stat err = %v", err)
	}
	if len(archiver.archived) != 1 || archiver.archived[0] != stalePath {
		t.Fatalf("got archived = %+v", archiver.archived)
	}
	freshPath := s.pathFor("fresh", time.Now().Format("2006-01-02"))
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected fresh file to survive rotation: %v", err)
	}
}

func TestWireSubscribesToAllFourEvents(t *testing.T) {
	s := newTestStore(t)
	b := bus.New()
	s.Wire(b)

	for _, event := range []string{
		model.EventHeartbeatReceived, model.EventHeartbeatFailed,
		model.EventFlatlineDetected, model.EventServiceRecovered,
	} {
		if b.ListenerCount(event) != 1 {
			t.Fatalf("event %s: got %d listeners, want 1", event, b.ListenerCount(event))
		}
	}
}
