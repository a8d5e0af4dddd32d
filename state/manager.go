// Package state implements the per-service state machine: sustained
// degradation hysteresis, flatline detection, and recovery.
package state

import (
	"sort"
	"sync"

	"pulsewatch/bus"
	"pulsewatch/model"
)

// Manager owns one Worker per known service and routes
// heartbeat_received/heartbeat_failed events to the right one.
type Manager struct {
	bus          *bus.Bus
	thresholdsFn func() model.Thresholds

	mu      sync.RWMutex
	workers map[string]*Worker
}

func NewManager(b *bus.Bus, thresholdsFn func() model.Thresholds) *Manager {
	m := &Manager{bus: b, thresholdsFn: thresholdsFn, workers: make(map[string]*Worker)}
	b.Subscribe(model.EventHeartbeatReceived, m.dispatch(model.EventHeartbeatReceived))
	b.Subscribe(model.EventHeartbeatFailed, m.dispatch(model.EventHeartbeatFailed))
	return m
}

func (m *Manager) dispatch(kind string) bus.Handler {
	return func(payload interface{}) {
		hr, ok := payload.(model.HeartbeatResult)
		if !ok {
			return
		}
		m.mu.RLock()
		w, ok := m.workers[hr.Service]
		m.mu.RUnlock()
		if !ok {
			return
		}
		w.enqueue(kind, hr)
	}
}

// Register creates and starts the worker for svc, together with its
// pre-observation ServiceState; the state exists from registration
// on, before any event. Events for a service that was never
// registered are dropped. Re-registering an existing service replaces
// its worker with a fresh one.
func (m *Manager) Register(svc model.Service) *Worker {
	w := newWorker(svc, m.bus, m.thresholdsFn)

	m.mu.Lock()
	if old, ok := m.workers[svc.Name]; ok {
		old.stop()
	}
	m.workers[svc.Name] = w
	m.mu.Unlock()

	go w.run()
	return w
}

// Unregister stops and removes the worker for name, used on service
// removal or config reload.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[name]; ok {
		w.stop()
		delete(m.workers, name)
	}
}

// Stop halts every worker.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workers {
		w.stop()
	}
}

func (m *Manager) Worker(name string) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[name]
	return w, ok
}

// Snapshots returns every service's Read-API snapshot, sorted by name.
func (m *Manager) Snapshots() []model.Snapshot {
	m.mu.RLock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.RUnlock()

	out := make([]model.Snapshot, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
