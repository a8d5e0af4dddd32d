package model

import "time"

// HeartbeatEntry is one probe outcome persisted to a daily log document.
type HeartbeatEntry struct {
	Check      string    `json:"check"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	LatencyMS  int64     `json:"latencyMs"`
	Status     Status    `json:"status"`
	HTTPStatus int       `json:"httpStatus"`
	Error      string    `json:"error,omitempty"`
}

// StateEventEntry is one state-change event (flatline, recovery,
// pulse change) persisted to a daily log document.
type StateEventEntry struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// LogSummary is the running aggregate kept consistent with a document's
// heartbeat array.
type LogSummary struct {
	CheckCount      int     `json:"checkCount"`
	SuccessCount    int     `json:"successCount"`
	FailureCount    int     `json:"failureCount"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	Uptime          float64 `json:"uptime"`
}

// ZeroSummary is the summary returned when a service has no document
// for the requested day.
func ZeroSummary() LogSummary {
	return LogSummary{Uptime: 100}
}

// LogDocument is the persisted shape of {logPath}/{service}-{date}.json.
type LogDocument struct {
	Service    string             `json:"service"`
	Date       string             `json:"date"`
	Heartbeats []HeartbeatEntry   `json:"heartbeats"`
	Events     []StateEventEntry  `json:"events"`
	Summary    LogSummary         `json:"summary"`
}
