// Package scheduler drives periodic probing of every configured
// service and check, one goroutine per (service, check) pair.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"pulsewatch/bus"
	"pulsewatch/engine"
	"pulsewatch/model"
	"pulsewatch/probe"
)

// startupDelay is how long a freshly spawned worker waits before its
// first probe, so a batch of services doesn't thunder on start.
const startupDelay = time.Second

type workerKey struct {
	service string
	check   string
}

type worker struct {
	key      workerKey
	svc      model.Service
	check    model.Check
	interval time.Duration
	cancel   context.CancelFunc
	trigger  chan chan model.HeartbeatResult
	running  atomic.Bool
	nextAt   atomic.Value // time.Time
}

func (w *worker) setNext(t time.Time) { w.nextAt.Store(t) }

func (w *worker) next() time.Time {
	if t, ok := w.nextAt.Load().(time.Time); ok {
		return t
	}
	return time.Time{}
}

// Scheduler owns one ticking worker per (service, check) pair and
// runs each probe through the engine.
type Scheduler struct {
	bus          *bus.Bus
	registry     *probe.Registry
	thresholdsFn func() model.Thresholds
	baseCtx      context.Context

	mu      sync.RWMutex
	workers map[workerKey]*worker
	paused  map[string][]pausedWorker
	wg      sync.WaitGroup
}

type pausedWorker struct {
	svc   model.Service
	check model.Check
}

func New(b *bus.Bus, registry *probe.Registry, thresholdsFn func() model.Thresholds) *Scheduler {
	return &Scheduler{
		bus:          b,
		registry:     registry,
		thresholdsFn: thresholdsFn,
		workers:      make(map[workerKey]*worker),
		paused:       make(map[string][]pausedWorker),
	}
}

// Start is idempotent: it records the base context once and spawns a
// worker for every check on every service passed in.
func (s *Scheduler) Start(ctx context.Context, services []model.Service) {
	s.mu.Lock()
	if s.baseCtx == nil {
		s.baseCtx = ctx
	}
	s.mu.Unlock()

	for _, svc := range services {
		s.AddService(svc)
	}
}

// AddService spawns a worker for each of svc's checks, replacing any
// existing workers for the same service.
func (s *Scheduler) AddService(svc model.Service) {
	s.RemoveService(svc.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return
	}
	for _, check := range svc.Checks {
		s.spawnLocked(svc, check)
	}
}

// RemoveService cancels every worker belonging to name and forgets
// any paused state for it. It returns without waiting for the
// cancelled workers to exit.
func (s *Scheduler) RemoveService(name string) {
	s.mu.Lock()
	for key, w := range s.workers {
		if key.service == name {
			w.cancel()
			delete(s.workers, key)
		}
	}
	delete(s.paused, name)
	s.mu.Unlock()
}

// Stop cancels every worker and blocks until all have exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, w := range s.workers {
		w.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) spawnLocked(svc model.Service, check model.Check) {
	interval := time.Duration(svc.ProbeInterval) * time.Second
	if interval <= 0 {
		interval = defaultInterval(svc.Tier)
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	w := &worker{
		key:      workerKey{svc.Name, check.Name},
		svc:      svc,
		check:    check,
		interval: interval,
		cancel:   cancel,
		trigger:  make(chan chan model.HeartbeatResult, 1),
	}
	w.setNext(time.Now().Add(startupDelay))
	s.workers[w.key] = w

	s.wg.Add(1)
	go s.run(ctx, w)
}

func defaultInterval(tier model.Tier) time.Duration {
	switch tier {
	case model.TierCritical:
		return 15 * time.Second
	case model.TierLow:
		return 120 * time.Second
	default:
		return 30 * time.Second
	}
}

func (s *Scheduler) run(ctx context.Context, w *worker) {
	defer s.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(startupDelay):
	}
	s.tick(ctx, w)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, w)
		case reply := <-w.trigger:
			result := s.probeNow(ctx, w)
			if reply != nil {
				reply <- result
			}
		}
	}
}

// tick runs a periodic probe. Ticks and triggers for a worker are
// served one at a time by its own run goroutine, so probes of the same
// (service, check) never overlap; a tick that falls due while a probe
// is running is held or dropped by time.Ticker, which keeps at most
// one pending tick. The running guard below logs and skips a tick if a
// tick's probe were still in flight.
func (s *Scheduler) tick(ctx context.Context, w *worker) {
	if !w.running.CompareAndSwap(false, true) {
		log.Printf("scheduler: %s/%s overlapped, skipping tick", w.svc.Name, w.check.Name)
		return
	}
	defer w.running.Store(false)
	s.probeNow(ctx, w)
}

func (s *Scheduler) probeNow(ctx context.Context, w *worker) model.HeartbeatResult {
	checkCtx, cancel := context.WithTimeout(ctx, time.Duration(w.check.TimeoutOrDefault())*time.Millisecond)
	defer cancel()
	w.setNext(time.Now().Add(w.interval))
	return engine.Run(checkCtx, s.bus, s.registry, s.thresholdsFn(), w.svc, w.check)
}

// TriggerCheck runs every check belonging to name once, immediately
// and concurrently across checks, without displacing their periodic
// cadence, and returns the vector of results. A worker that is
// mid-tick runs its trigger after that tick's probe finishes.
func (s *Scheduler) TriggerCheck(name string) []model.HeartbeatResult {
	s.mu.RLock()
	var targets []*worker
	for key, w := range s.workers {
		if key.service == name {
			targets = append(targets, w)
		}
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	results := make([]model.HeartbeatResult, len(targets))
	for i, w := range targets {
		reply := make(chan model.HeartbeatResult, 1)
		wg.Add(1)
		go func(i int, w *worker, reply chan model.HeartbeatResult) {
			defer wg.Done()
			select {
			case w.trigger <- reply:
				results[i] = <-reply
			default:
				log.Printf("scheduler: %s/%s trigger queue full, dropped", w.svc.Name, w.check.Name)
			}
		}(i, w, reply)
	}
	wg.Wait()
	return results
}

// PauseService removes a service's scheduled activities without
// discarding its configuration, so ResumeService can reinstall them.
func (s *Scheduler) PauseService(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paused[name]; ok {
		return
	}
	var saved []pausedWorker
	for key, w := range s.workers {
		if key.service == name {
			saved = append(saved, pausedWorker{svc: w.svc, check: w.check})
			w.cancel()
			delete(s.workers, key)
		}
	}
	if saved != nil {
		s.paused[name] = saved
	}
}

// ResumeService reinstalls the activities a prior PauseService call
// removed.
func (s *Scheduler) ResumeService(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, ok := s.paused[name]
	if !ok || s.baseCtx == nil {
		return
	}
	delete(s.paused, name)
	for _, pw := range saved {
		s.spawnLocked(pw.svc, pw.check)
	}
}

// UpdateInterval replaces the probe interval for every check on
// service and emits config_updated. The Read API does not expose
// this for POST /api/config/services — persisted interval changes
// there require a restart — but the scheduler itself supports live
// rescheduling for internal callers.
func (s *Scheduler) UpdateInterval(service string, seconds int) {
	s.mu.Lock()
	var svc model.Service
	var checks []model.Check
	for key, w := range s.workers {
		if key.service == service {
			svc = w.svc
			checks = append(checks, w.check)
			w.cancel()
			delete(s.workers, key)
		}
	}
	if svc.Name == "" {
		s.mu.Unlock()
		return
	}
	svc.ProbeInterval = seconds
	for _, check := range checks {
		s.spawnLocked(svc, check)
	}
	s.mu.Unlock()

	s.bus.Publish(model.EventConfigUpdated, model.ConfigUpdated{
		Service:   service,
		Field:     "probeInterval",
		Value:     seconds,
		Timestamp: time.Now(),
	})
}

// ActivityStatus describes one scheduled (service, check) activity.
type ActivityStatus struct {
	Key            string    `json:"key"`
	NextInvocation time.Time `json:"nextInvocation"`
}

// Statuses returns {key, nextInvocation} for every active activity.
func (s *Scheduler) Statuses() []ActivityStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActivityStatus, 0, len(s.workers))
	for key, w := range s.workers {
		out = append(out, ActivityStatus{
			Key:            key.service + "/" + key.check,
			NextInvocation: w.next(),
		})
	}
	return out
}
