// Package alert turns state-machine events into a bounded, mutable
// history of human-facing alerts and republishes each as
// alert_triggered for the broadcaster and audit store to pick up.
package alert

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulsewatch/bus"
	"pulsewatch/model"
)

// AuditSink persists alerts beyond the bounded in-memory ring.
// Implemented by the optional Postgres-backed audit store; a nil
// sink disables audit logging without changing in-memory behavior.
type AuditSink interface {
	InsertAlert(ctx context.Context, a model.Alert) error
}

// Manager owns the in-memory alert ring and per-service mute state.
type Manager struct {
	bus   *bus.Bus
	audit AuditSink

	mu      sync.Mutex
	history []model.Alert
	muted   map[string]bool
}

func NewManager(b *bus.Bus) *Manager {
	m := &Manager{bus: b, muted: make(map[string]bool)}
	b.Subscribe(model.EventPulseChanged, m.onPulseChanged)
	b.Subscribe(model.EventFlatlineDetected, m.onFlatlineDetected)
	b.Subscribe(model.EventServiceRecovered, m.onServiceRecovered)
	return m
}

func (m *Manager) onPulseChanged(payload interface{}) {
	pc, ok := payload.(model.PulseChanged)
	if !ok || pc.NewStatus == model.StatusFlatline {
		return
	}
	severity := severityForStatus(pc.NewStatus)
	m.record(model.Alert{
		Type:      model.AlertDegraded,
		Service:   pc.Service,
		Severity:  severity,
		Message:   fmt.Sprintf("%s changed from %s to %s", pc.Service, pc.OldStatus, pc.NewStatus),
		Timestamp: pc.Timestamp,
	})
}

func (m *Manager) onFlatlineDetected(payload interface{}) {
	fd, ok := payload.(model.FlatlineDetected)
	if !ok {
		return
	}
	m.record(model.Alert{
		Type:      model.AlertFlatline,
		Service:   fd.Service,
		Severity:  severityForFlatline(fd.Severity),
		Message:   fmt.Sprintf("%s flatlined after %d consecutive failures", fd.Service, fd.ConsecutiveFailures),
		Timestamp: fd.Timestamp,
	})
}

func (m *Manager) onServiceRecovered(payload interface{}) {
	sr, ok := payload.(model.ServiceRecovered)
	if !ok {
		return
	}
	m.record(model.Alert{
		Type:      model.AlertRecovery,
		Service:   sr.Service,
		Severity:  model.AlertSevInfo,
		Message:   fmt.Sprintf("%s recovered after %s", sr.Service, time.Duration(sr.Downtime)*time.Millisecond),
		Timestamp: sr.Timestamp,
	})
}

func severityForStatus(status model.Status) model.AlertSeverity {
	switch status {
	case model.StatusCritical:
		return model.AlertSevHigh
	case model.StatusWarning:
		return model.AlertSevMedium
	default:
		return model.AlertSevLow
	}
}

func severityForFlatline(sev model.FlatlineSeverity) model.AlertSeverity {
	switch sev {
	case model.FlatlineCatastrophic:
		return model.AlertSevCritical
	case model.FlatlineCritical:
		return model.AlertSevHigh
	default:
		return model.AlertSevMedium
	}
}

// record appends to the ring unless the service is muted, then
// republishes onto the bus for downstream consumers.
func (m *Manager) record(a model.Alert) {
	m.mu.Lock()
	muted := m.muted[a.Service]
	audit := m.audit
	if !muted {
		a.ID = uuid.NewString()
		m.history = append(m.history, a)
		if len(m.history) > model.MaxAlertHistory {
			m.history = m.history[len(m.history)-model.MaxAlertHistory:]
		}
	}
	m.mu.Unlock()

	if !muted {
		m.bus.Publish(model.EventAlertTriggered, model.AlertTriggered{Alert: a})
		if audit != nil {
			if err := audit.InsertAlert(context.Background(), a); err != nil {
				log.Printf("alert: audit insert failed: %v", err)
			}
		}
	}
}

// SetAuditSink wires an optional long-term audit store. Absent a
// configured database URL, callers leave this unset and alerts live
// only in the bounded in-memory ring.
func (m *Manager) SetAuditSink(sink AuditSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = sink
}

// Mute suppresses future alerts for service until Unmute is called.
func (m *Manager) Mute(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted[service] = true
}

func (m *Manager) Unmute(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.muted, service)
}

func (m *Manager) IsMuted(service string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted[service]
}

// History returns up to limit most-recent alerts, newest last.
// limit<=0 returns the full (already bounded) history.
func (m *Manager) History(limit int) []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit >= len(m.history) {
		out := make([]model.Alert, len(m.history))
		copy(out, m.history)
		return out
	}
	out := make([]model.Alert, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}
