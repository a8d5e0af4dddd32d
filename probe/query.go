package probe

import (
	"context"

	"pulsewatch/model"
)

type queryStrategy struct{}

func (s *queryStrategy) Probe(ctx context.Context, svc model.Service, check model.Check) (model.ProbeResult, error) {
	ctx, cancel := withTimeout(ctx, check.TimeoutOrDefault())
	defer cancel()

	headers := map[string]string{}
	if svc.AuthToken != "" {
		headers["Authorization"] = "Bearer " + svc.AuthToken
	}

	payload := map[string]interface{}{"query": check.Query}
	if check.Variables != nil {
		payload["variables"] = check.Variables
	}

	result, gqlErrors, err := postJSON(ctx, svc.URL, payload, headers)
	if err != nil || !result.HasResponse {
		return result, err
	}

	if len(gqlErrors) > 0 {
		result.Success = false
		result.Error = gqlErrors[0].Message
	}
	return result, nil
}
