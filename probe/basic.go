package probe

import (
	"context"

	"pulsewatch/model"
)

type basicStrategy struct{}

func (s *basicStrategy) Probe(ctx context.Context, svc model.Service, check model.Check) (model.ProbeResult, error) {
	ctx, cancel := withTimeout(ctx, check.TimeoutOrDefault())
	defer cancel()

	query := check.Query
	if query == "" {
		query = "{ __typename }"
	}

	result, _, err := postJSON(ctx, svc.URL, map[string]string{"query": query}, nil)
	return result, err
}
