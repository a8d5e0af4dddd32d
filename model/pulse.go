package model

// Status is the classification of one probe outcome, or (once derived
// by the state machine) the service-level pulse.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusFlatline Status = "flatline"
)

// Pulse attaches a measured latency to an evaluated Status.
type Pulse struct {
	Status  Status `json:"status"`
	Latency int64  `json:"latencyMs"`
}
