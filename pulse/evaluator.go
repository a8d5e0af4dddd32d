// Package pulse classifies one probe outcome into a model.Status.
package pulse

import (
	"time"

	"pulsewatch/model"
)

// Evaluate maps (latency, ProbeResult) to a Pulse using the supplied
// thresholds. It never returns model.StatusFlatline — that status is
// reserved for the service state machine.
func Evaluate(latency time.Duration, result model.ProbeResult, tier model.Tier, thresholds model.Thresholds) model.Pulse {
	ms := latency.Milliseconds()

	if !result.Success {
		return model.Pulse{Status: model.StatusCritical, Latency: ms}
	}

	healthyMax := thresholds.HealthyMaxFor(tier)
	switch {
	case ms <= int64(healthyMax):
		return model.Pulse{Status: model.StatusHealthy, Latency: ms}
	case ms <= int64(thresholds.WarningMax):
		return model.Pulse{Status: model.StatusWarning, Latency: ms}
	default:
		return model.Pulse{Status: model.StatusCritical, Latency: ms}
	}
}
