// Package logstore persists a per-service, per-day rolling log of
// heartbeats and state events as write-through JSON documents.
package logstore

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"pulsewatch/bus"
	"pulsewatch/model"
)

var sanitizeRe = regexp.MustCompile(`\s+`)

func sanitize(service string) string {
	return sanitizeRe.ReplaceAllString(service, "_")
}

// Archiver uploads a rotated log file before it is deleted locally.
// Implemented by the optional minio-backed client; nil disables
// archival without changing rotation's mandatory delete behavior.
type Archiver interface {
	Archive(localPath, service, date string) error
}

// Store owns the on-disk log directory and an in-memory cache of
// open documents, keyed by file path.
type Store struct {
	dir      string
	archiver Archiver

	mu   sync.Mutex
	docs map[string]*model.LogDocument
}

// New creates the log directory if absent — fatal on failure, since
// every subscriber depends on it existing before the first event
// arrives.
func New(dir string, archiver Archiver) *Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("logstore: create log directory %s: %v", dir, err)
	}
	return &Store{dir: dir, archiver: archiver, docs: make(map[string]*model.LogDocument)}
}

// Wire subscribes the store to the events it must persist:
// heartbeat_received, heartbeat_failed, flatline_detected, and
// service_recovered.
func (s *Store) Wire(b *bus.Bus) {
	b.Subscribe(model.EventHeartbeatReceived, func(p interface{}) {
		if hr, ok := p.(model.HeartbeatResult); ok {
			s.AppendHeartbeat(hr.Service, hr)
		}
	})
	b.Subscribe(model.EventHeartbeatFailed, func(p interface{}) {
		if hr, ok := p.(model.HeartbeatResult); ok {
			s.AppendHeartbeat(hr.Service, hr)
		}
	})
	b.Subscribe(model.EventFlatlineDetected, func(p interface{}) {
		if fd, ok := p.(model.FlatlineDetected); ok {
			s.AppendEvent(fd.Service, model.EventFlatlineDetected, string(fd.Severity), fd.Timestamp)
		}
	})
	b.Subscribe(model.EventServiceRecovered, func(p interface{}) {
		if sr, ok := p.(model.ServiceRecovered); ok {
			s.AppendEvent(sr.Service, model.EventServiceRecovered, fmt.Sprintf("downtime=%dms", sr.Downtime), sr.Timestamp)
		}
	})
}

func (s *Store) pathFor(service, date string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", sanitize(service), date))
}

func (s *Store) load(path, service, date string) (*model.LogDocument, error) {
	if doc, ok := s.docs[path]; ok {
		return doc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			doc := &model.LogDocument{Service: service, Date: date, Summary: model.LogSummary{Uptime: 100}}
			s.docs[path] = doc
			return doc, nil
		}
		return nil, err
	}
	var doc model.LogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("logstore: parse %s: %w", path, err)
	}
	s.docs[path] = &doc
	return &doc, nil
}

// persist writes doc to path using the create-temp/rename idiom so a
// crash mid-write never leaves a half-written document behind.
func (s *Store) persist(path string, doc *model.LogDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("logstore: marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".logstore-*.tmp")
	if err != nil {
		return fmt.Errorf("logstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("logstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("logstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("logstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("logstore: rename temp file: %w", err)
	}
	tmp = nil
	return nil
}

// AppendHeartbeat records one probe outcome and keeps the day's
// summary consistent with it.
func (s *Store) AppendHeartbeat(service string, hr model.HeartbeatResult) {
	date := hr.Timestamp.Format("2006-01-02")
	path := s.pathFor(service, date)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(path, sanitize(service), date)
	if err != nil {
		log.Printf("logstore: load %s: %v", path, err)
		return
	}

	entry := model.HeartbeatEntry{
		Check:      hr.Check,
		Timestamp:  hr.Timestamp,
		Success:    hr.Success,
		LatencyMS:  hr.ResponseTime,
		Status:     hr.Pulse.Status,
		HTTPStatus: hr.HTTPStatus,
		Error:      hr.Error,
	}
	doc.Heartbeats = append(doc.Heartbeats, entry)
	doc.Summary = recomputeSummary(doc.Heartbeats)

	if err := s.persist(path, doc); err != nil {
		log.Printf("logstore: %v", err)
	}
}

// AppendEvent records a state-change event without touching the
// day's heartbeat summary.
func (s *Store) AppendEvent(service, kind, detail string, at time.Time) {
	date := at.Format("2006-01-02")
	path := s.pathFor(service, date)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(path, sanitize(service), date)
	if err != nil {
		log.Printf("logstore: load %s: %v", path, err)
		return
	}

	doc.Events = append(doc.Events, model.StateEventEntry{Kind: kind, Timestamp: at, Detail: detail})
	if err := s.persist(path, doc); err != nil {
		log.Printf("logstore: %v", err)
	}
}

func recomputeSummary(heartbeats []model.HeartbeatEntry) model.LogSummary {
	var success, failure int
	var totalLatency int64
	for _, h := range heartbeats {
		if h.Success {
			success++
			if h.LatencyMS > 0 {
				totalLatency += h.LatencyMS
			}
		} else {
			failure++
		}
	}
	summary := model.LogSummary{
		CheckCount:   len(heartbeats),
		SuccessCount: success,
		FailureCount: failure,
		Uptime:       100,
	}
	if success > 0 {
		summary.AvgResponseTime = float64(totalLatency) / float64(success)
	}
	if total := success + failure; total > 0 {
		summary.Uptime = float64(success) / float64(total) * 100
	}
	return summary
}

// History returns entries from the last `hours` hours, sorted
// ascending by timestamp, reading back ceil(hours/24) daily documents.
func (s *Store) History(service string, hours int) []model.HeartbeatEntry {
	if hours <= 0 {
		hours = 24
	}
	days := (hours + 23) / 24
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.HeartbeatEntry
	now := time.Now()
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		path := s.pathFor(service, date)
		doc, err := s.load(path, sanitize(service), date)
		if err != nil {
			log.Printf("logstore: load %s: %v", path, err)
			continue
		}
		for _, h := range doc.Heartbeats {
			if !h.Timestamp.Before(cutoff) {
				out = append(out, h)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Summary returns today's running aggregate, or a zero summary
// (uptime 100) if no document exists for today yet.
func (s *Store) Summary(service string) model.LogSummary {
	date := time.Now().Format("2006-01-02")
	path := s.pathFor(service, date)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(path, sanitize(service), date)
	if err != nil {
		log.Printf("logstore: load %s: %v", path, err)
		return model.ZeroSummary()
	}
	return doc.Summary
}

// Rotate deletes log files whose modification time is older than
// retention, archiving each one first when an Archiver is
// configured. Intended to run at the next local midnight and every
// 24 hours thereafter.
func (s *Store) Rotate(retention time.Duration) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("logstore: rotate: read dir %s: %v", s.dir, err)
		return
	}

	cutoff := time.Now().Add(-retention)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		service, date := parseLogFilename(entry.Name())

		if s.archiver != nil && service != "" {
			if err := s.archiver.Archive(path, service, date); err != nil {
				log.Printf("logstore: archive %s before rotation: %v", path, err)
			}
		}

		if err := os.Remove(path); err != nil {
			log.Printf("logstore: rotate: remove %s: %v", path, err)
			continue
		}

		s.mu.Lock()
		delete(s.docs, path)
		s.mu.Unlock()
	}
}

var logFilenameRe = regexp.MustCompile(`^(.+)-(\d{4}-\d{2}-\d{2})\.json$`)

func parseLogFilename(name string) (service, date string) {
	m := logFilenameRe.FindStringSubmatch(name)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// RunRotationSchedule blocks, rotating at the next local midnight and
// every 24 hours thereafter, until stop is closed.
func (s *Store) RunRotationSchedule(retention time.Duration, stop <-chan struct{}) {
	for {
		wait := timeUntilNextMidnight()
		select {
		case <-stop:
			return
		case <-time.After(wait):
			s.Rotate(retention)
		}
	}
}

func timeUntilNextMidnight() time.Duration {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return midnight.Sub(now)
}
