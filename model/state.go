package model

import "time"

// ResponseSample is one entry in a service's bounded response history.
type ResponseSample struct {
	Timestamp       time.Time `json:"timestamp"`
	Latency         int64     `json:"latencyMs"`
	EvaluatedStatus Status    `json:"evaluatedStatus"`
	IsFailure       bool      `json:"isFailure"`
}

// ServiceState is the in-memory authoritative record for one service.
// It is owned exclusively by that service's state-machine goroutine;
// callers outside that goroutine only ever see a copy (a Snapshot, or
// the full copy returned by the state package's Worker.State).
type ServiceState struct {
	Service Service `json:"-"`

	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	LastCheck           *time.Time `json:"lastCheck,omitempty"`

	CurrentStatus     Status     `json:"currentStatus"`
	IsFlatlined       bool       `json:"isFlatlined"`
	FlatlineStartTime *time.Time `json:"flatlineStartTime,omitempty"`

	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`

	ResponseHistory []ResponseSample `json:"responseHistory"`
	LastHTTPStatus  *int             `json:"lastHttpStatus,omitempty"`
	LastRawBody     []byte           `json:"-"`
}

// NewServiceState returns the pre-observation initial state for svc.
func NewServiceState(svc Service) *ServiceState {
	return &ServiceState{
		Service:       svc,
		CurrentStatus: StatusHealthy,
	}
}

// Uptime is successCount / (successCount + failureCount) * 100, defined
// as 100 when no probes have been observed.
func (s *ServiceState) Uptime() float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return 100
	}
	return float64(s.SuccessCount) / float64(total) * 100
}

// PushSample appends a sample to the response history, evicting the
// oldest entry once the history exceeds cap.
func (s *ServiceState) PushSample(sample ResponseSample, cap int) {
	s.ResponseHistory = append(s.ResponseHistory, sample)
	if cap <= 0 {
		cap = 1
	}
	if len(s.ResponseHistory) > cap {
		s.ResponseHistory = s.ResponseHistory[len(s.ResponseHistory)-cap:]
	}
}

// Snapshot is a read-only, copy-safe view of a ServiceState, safe to
// hand to the Read API and Broadcaster without holding the owning
// goroutine's lock.
type Snapshot struct {
	Name                string     `json:"name"`
	URL                 string     `json:"url"`
	Tier                Tier       `json:"tier"`
	ProbeInterval       int        `json:"probeInterval"`
	Status              Status     `json:"status"`
	LastCheck           *time.Time `json:"lastCheck,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	IsFlatlined         bool       `json:"isFlatlined"`
	Uptime              float64    `json:"uptime"`
	HTTPStatus          *int       `json:"httpStatus,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`
}

// Snapshot copies the fields exposed by the Read API out of s.
func (s *ServiceState) Snapshot() Snapshot {
	return Snapshot{
		Name:                s.Service.Name,
		URL:                 s.Service.URL,
		Tier:                s.Service.Tier,
		ProbeInterval:       s.Service.ProbeInterval,
		Status:              s.CurrentStatus,
		LastCheck:           s.LastCheck,
		LastSuccess:         s.LastSuccess,
		ConsecutiveFailures: s.ConsecutiveFailures,
		IsFlatlined:         s.IsFlatlined,
		Uptime:              s.Uptime(),
		HTTPStatus:          s.LastHTTPStatus,
		Labels:              s.Service.Labels,
	}
}
