// Package engine orchestrates a single probe: it emits lifecycle
// events, invokes the configured strategy, classifies the outcome, and
// routes the resulting event onto the bus.
package engine

import (
	"context"
	"log"
	"time"

	"pulsewatch/bus"
	"pulsewatch/model"
	"pulsewatch/probe"
	"pulsewatch/pulse"
)

// Run performs one probe lifecycle for a (service, check) pair: emit
// sent, invoke the strategy, classify the outcome, and publish the
// resulting event.
func Run(ctx context.Context, b *bus.Bus, registry *probe.Registry, thresholds model.Thresholds, svc model.Service, check model.Check) model.HeartbeatResult {
	now := time.Now()
	b.Publish(model.EventHeartbeatSent, model.HeartbeatSent{
		Service:   svc.Name,
		Check:     check.Name,
		Timestamp: now,
	})

	start := time.Now()

	strategy, ok := registry.Lookup(check.Strategy)
	if !ok {
		result := synthesize(svc, check, start, model.ProbeResult{
			Success: false,
			Error:   "unknown strategy: " + string(check.Strategy),
		})
		b.Publish(model.EventHeartbeatFailed, result)
		return result
	}

	probeResult, err := safeProbe(ctx, strategy, svc, check)
	if err != nil {
		log.Printf("engine: %s/%s: strategy error: %v", svc.Name, check.Name, err)
		result := synthesize(svc, check, start, model.ProbeResult{
			Success: false, HasResponse: false, Error: err.Error(),
		})
		b.Publish(model.EventHeartbeatFailed, result)
		return result
	}

	result := synthesize(svc, check, start, probeResult)
	result.Pulse = pulse.Evaluate(time.Duration(result.ResponseTime)*time.Millisecond, probeResult, svc.Tier, thresholds)

	if probeResult.Success && probeResult.HTTPStatus == 200 {
		b.Publish(model.EventHeartbeatReceived, result)
	} else {
		b.Publish(model.EventHeartbeatFailed, result)
	}
	return result
}

func synthesize(svc model.Service, check model.Check, start time.Time, probeResult model.ProbeResult) model.HeartbeatResult {
	latency := time.Since(start).Milliseconds()
	return model.HeartbeatResult{
		Service:      svc.Name,
		Check:        check.Name,
		Timestamp:    time.Now(),
		ResponseTime: latency,
		Success:      probeResult.Success,
		HTTPStatus:   probeResult.HTTPStatus,
		Error:        probeResult.Error,
		HasResponse:  probeResult.HasResponse,
		RawBody:      probeResult.RawBody,
		Pulse:        model.Pulse{Status: model.StatusFlatline, Latency: latency},
	}
}

// safeProbe recovers a strategy panic into an error so a misbehaving
// strategy can never take down the owning scheduler worker.
func safeProbe(ctx context.Context, strategy probe.Strategy, svc model.Service, check model.Check) (result model.ProbeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	return strategy.Probe(ctx, svc, check)
}

type panicError struct{ v interface{} }

func (p panicError) Error() string {
	return "panic: " + toString(p.v)
}

func toString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}
