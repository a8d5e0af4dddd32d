package model

// Tier is the priority class of a monitored service. It controls the
// default flatline threshold and (absent an explicit probeInterval) the
// default probe cadence.
type Tier string

const (
	TierCritical Tier = "critical"
	TierStandard Tier = "standard"
	TierLow      Tier = "low"
)

// StrategyKind names a pluggable probe implementation.
type StrategyKind string

const (
	StrategyBasic         StrategyKind = "basic"
	StrategyAuthenticated StrategyKind = "authenticated"
	StrategyQuery         StrategyKind = "query"
)

// DefaultCheckTimeoutMS is used when a Check does not declare its own
// timeout.
const DefaultCheckTimeoutMS = 10_000

// Check is one named probe definition on a service.
type Check struct {
	Name      string                 `json:"name"`
	Strategy  StrategyKind           `json:"strategy"`
	Query     string                 `json:"query,omitempty"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	TimeoutMS int                    `json:"timeout,omitempty"`
}

// TimeoutOrDefault returns the check's configured timeout, or the
// package default when unset.
func (c Check) TimeoutOrDefault() int {
	if c.TimeoutMS <= 0 {
		return DefaultCheckTimeoutMS
	}
	return c.TimeoutMS
}

// Service is a static descriptor of one monitored upstream endpoint.
type Service struct {
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	Tier          Tier              `json:"tier"`
	ProbeInterval int               `json:"probeInterval"`
	Checks        []Check           `json:"checks"`
	AuthToken     string            `json:"authToken,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// TierOverride narrows the default thresholds for one tier.
type TierOverride struct {
	Healthy               *LatencyBound `json:"healthy,omitempty"`
	ConsecutiveFailures   int           `json:"consecutiveFailures,omitempty"`
}

// LatencyBound is an upper latency bound in milliseconds.
type LatencyBound struct {
	Max int `json:"max"`
}

// Thresholds is the semantic configuration consumed by the Pulse
// Evaluator and the Service State Machine.
type Thresholds struct {
	HealthyMax          int                   `json:"healthyMax"`
	WarningMax          int                   `json:"warningMax"`
	SustainedCount      int                   `json:"sustainedCount"`
	DefaultFlatlineCount int                  `json:"defaultFlatlineCount"`
	Tiers               map[Tier]TierOverride `json:"tiers,omitempty"`
}

// FlatlineThreshold returns the consecutive-failure count that triggers
// flatline for the given tier, falling back to the default when the
// tier has no override.
func (t Thresholds) FlatlineThreshold(tier Tier) int {
	if ov, ok := t.Tiers[tier]; ok && ov.ConsecutiveFailures > 0 {
		return ov.ConsecutiveFailures
	}
	if t.DefaultFlatlineCount > 0 {
		return t.DefaultFlatlineCount
	}
	return 3
}

// HealthyMaxFor returns the healthy-latency ceiling for the tier,
// falling back to the global default.
func (t Thresholds) HealthyMaxFor(tier Tier) int {
	if ov, ok := t.Tiers[tier]; ok && ov.Healthy != nil {
		return ov.Healthy.Max
	}
	return t.HealthyMax
}

// DefaultThresholds mirrors thresholds.json's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HealthyMax:           200,
		WarningMax:           500,
		SustainedCount:       3,
		DefaultFlatlineCount: 3,
		Tiers: map[Tier]TierOverride{
			TierCritical: {ConsecutiveFailures: 2},
			TierStandard: {ConsecutiveFailures: 3},
			TierLow:      {ConsecutiveFailures: 5},
		},
	}
}
