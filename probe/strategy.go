// Package probe implements the pluggable probe strategies: one
// operation, Probe, over a common contract.
package probe

import (
	"context"
	"time"

	"pulsewatch/model"
)

// Strategy performs one probe against a service and must respect
// check.TimeoutOrDefault(), cancelling its underlying transport on
// expiry. Implementations never return a Go error for transport
// failures — those are folded into ProbeResult.Error — err is reserved
// for programmer mistakes (e.g. a nil client).
type Strategy interface {
	Probe(ctx context.Context, svc model.Service, check model.Check) (model.ProbeResult, error)
}

// Registry looks strategies up by their configured kind.
type Registry struct {
	strategies map[model.StrategyKind]Strategy
}

// NewRegistry wires the three built-in strategies over a shared
// *http.Client-backed transport.
func NewRegistry() *Registry {
	return &Registry{
		strategies: map[model.StrategyKind]Strategy{
			model.StrategyBasic:         &basicStrategy{},
			model.StrategyAuthenticated: &authenticatedStrategy{},
			model.StrategyQuery:         &queryStrategy{},
		},
	}
}

// Lookup returns the strategy for kind, or nil, false if unknown.
func (r *Registry) Lookup(kind model.StrategyKind) (Strategy, bool) {
	s, ok := r.strategies[kind]
	return s, ok
}

func withTimeout(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		ms = model.DefaultCheckTimeoutMS
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}
