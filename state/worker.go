package state

import (
	"log"
	"sync"

	"pulsewatch/bus"
	"pulsewatch/model"
)

const inboxCapacity = 64

type inboundMsg struct {
	kind string
	hr   model.HeartbeatResult
}

// Worker owns one service's ServiceState exclusively, consuming probe
// outcomes from a bounded channel so only one goroutine ever mutates a
// given service's state. The mutex exists only so Snapshot/State
// (called from the Read API and Broadcaster) can safely read state
// concurrently with the owning goroutine's mutations. Apply holds it
// for the whole transition, including the bus.Publish calls that
// transition makes, so a bus handler must not read this worker's state.
type Worker struct {
	mu           sync.RWMutex
	state        *model.ServiceState
	bus          *bus.Bus
	thresholdsFn func() model.Thresholds

	inbox chan inboundMsg
	done  chan struct{}
}

func newWorker(svc model.Service, b *bus.Bus, thresholdsFn func() model.Thresholds) *Worker {
	return &Worker{
		state:        model.NewServiceState(svc),
		bus:          b,
		thresholdsFn: thresholdsFn,
		inbox:        make(chan inboundMsg, inboxCapacity),
		done:         make(chan struct{}),
	}
}

// enqueue is non-blocking: if the inbox is full the event is dropped
// and logged, rather than letting a stalled worker back up the bus.
func (w *Worker) enqueue(kind string, hr model.HeartbeatResult) {
	select {
	case w.inbox <- inboundMsg{kind, hr}:
	default:
		log.Printf("state: dropping %s for %s, worker backed up", kind, hr.Service)
	}
}

func (w *Worker) run() {
	for {
		select {
		case <-w.done:
			return
		case msg := <-w.inbox:
			w.Apply(msg.kind, msg.hr)
		}
	}
}

func (w *Worker) stop() {
	close(w.done)
}

// Apply runs the failure or success transition for one heartbeat
// result. Exported so tests can drive the state machine synchronously
// without racing the worker's own goroutine.
func (w *Worker) Apply(kind string, hr model.HeartbeatResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch kind {
	case model.EventHeartbeatFailed:
		w.onFailure(hr)
	case model.EventHeartbeatReceived:
		w.onSuccess(hr)
	}
}

func (w *Worker) onFailure(hr model.HeartbeatResult) {
	st := w.state
	now := hr.Timestamp

	st.ConsecutiveFailures++
	st.LastFailure = &now
	st.LastCheck = &now
	st.FailureCount++
	httpStatus := hr.HTTPStatus
	st.LastHTTPStatus = &httpStatus
	st.LastRawBody = hr.RawBody

	historyCap := w.thresholdsFn().SustainedCount
	st.PushSample(model.ResponseSample{
		Timestamp:       now,
		Latency:         hr.ResponseTime,
		EvaluatedStatus: model.StatusCritical,
		IsFailure:       true,
	}, historyCap)

	// An upstream HTTP error with a body (hasResponse=true) is a failure
	// but never a flatline candidate — only transport loss counts toward
	// the threshold crossing below.
	threshold := w.thresholdsFn().FlatlineThreshold(st.Service.Tier)
	if !hr.HasResponse && st.ConsecutiveFailures >= threshold && !st.IsFlatlined {
		st.IsFlatlined = true
		st.FlatlineStartTime = &now

		var timeSinceLastSuccess int64
		if st.LastSuccess != nil {
			timeSinceLastSuccess = now.Sub(*st.LastSuccess).Milliseconds()
		}
		w.bus.Publish(model.EventFlatlineDetected, model.FlatlineDetected{
			Service:              st.Service.Name,
			ConsecutiveFailures:  st.ConsecutiveFailures,
			LastSuccess:          st.LastSuccess,
			TimeSinceLastSuccess: timeSinceLastSuccess,
			Severity:             flatlineSeverity(st.ConsecutiveFailures),
			Timestamp:            now,
		})
	}

	// currentStatus tracks flatline only while the service is actually
	// flatlined — deliberately narrower than firing pulse_changed on
	// every failure, which would trip on the very first transient
	// failure. The transition is gated on isFlatlined so old=="healthy"
	// lands on the failure that actually crosses the threshold, not the
	// first one.
	if st.IsFlatlined && st.CurrentStatus != model.StatusFlatline {
		old := st.CurrentStatus
		w.bus.Publish(model.EventPulseChanged, model.PulseChanged{
			Service:   st.Service.Name,
			OldStatus: old,
			NewStatus: model.StatusFlatline,
			Timestamp: now,
		})
		st.CurrentStatus = model.StatusFlatline
	}
}

func (w *Worker) onSuccess(hr model.HeartbeatResult) {
	st := w.state
	now := hr.Timestamp

	if st.IsFlatlined {
		downtime := now.Sub(*st.FlatlineStartTime).Milliseconds()
		w.bus.Publish(model.EventServiceRecovered, model.ServiceRecovered{
			Service:      st.Service.Name,
			Downtime:     downtime,
			FailureCount: st.ConsecutiveFailures,
			Timestamp:    now,
		})
		st.IsFlatlined = false
		st.FlatlineStartTime = nil
	}

	st.ConsecutiveFailures = 0
	st.SuccessCount++
	st.LastSuccess = &now
	st.LastCheck = &now
	httpStatus := hr.HTTPStatus
	st.LastHTTPStatus = &httpStatus
	st.LastRawBody = hr.RawBody

	sustainedCount := w.thresholdsFn().SustainedCount
	st.PushSample(model.ResponseSample{
		Timestamp:       now,
		Latency:         hr.ResponseTime,
		EvaluatedStatus: hr.Pulse.Status,
		IsFailure:       false,
	}, sustainedCount)

	newStatus := hysteresis(hr.Pulse.Status, st.ResponseHistory, sustainedCount)
	if newStatus != st.CurrentStatus {
		old := st.CurrentStatus
		w.bus.Publish(model.EventPulseChanged, model.PulseChanged{
			Service:      st.Service.Name,
			OldStatus:    old,
			NewStatus:    newStatus,
			ResponseTime: hr.ResponseTime,
			Timestamp:    now,
		})
		st.CurrentStatus = newStatus
	}
}

// hysteresis implements the one-sided sustained-warning rule: critical
// and healthy take effect immediately; warning requires the last
// sustainedCount history entries to all be non-failure, warning-range
// samples.
func hysteresis(pulseStatus model.Status, history []model.ResponseSample, sustainedCount int) model.Status {
	switch pulseStatus {
	case model.StatusCritical:
		return model.StatusCritical
	case model.StatusHealthy:
		return model.StatusHealthy
	case model.StatusWarning:
		if sustainedCount <= 0 || len(history) < sustainedCount {
			return model.StatusHealthy
		}
		window := history[len(history)-sustainedCount:]
		for _, s := range window {
			if s.IsFailure || s.EvaluatedStatus != model.StatusWarning {
				return model.StatusHealthy
			}
		}
		return model.StatusWarning
	default:
		return pulseStatus
	}
}

func flatlineSeverity(consecutiveFailures int) model.FlatlineSeverity {
	switch {
	case consecutiveFailures >= 10:
		return model.FlatlineCatastrophic
	case consecutiveFailures >= 5:
		return model.FlatlineCritical
	default:
		return model.FlatlineWarning
	}
}

func (w *Worker) snapshot() model.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Snapshot()
}

// State returns a shallow copy of the full ServiceState, including
// response history, for the Read API's per-service detail endpoint.
func (w *Worker) State() model.ServiceState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	copyState := *w.state
	copyState.ResponseHistory = append([]model.ResponseSample(nil), w.state.ResponseHistory...)
	return copyState
}
