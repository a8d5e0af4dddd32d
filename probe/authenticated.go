package probe

import (
	"context"
	"strings"

	"pulsewatch/model"
)

type authenticatedStrategy struct{}

func (s *authenticatedStrategy) Probe(ctx context.Context, svc model.Service, check model.Check) (model.ProbeResult, error) {
	ctx, cancel := withTimeout(ctx, check.TimeoutOrDefault())
	defer cancel()

	query := check.Query
	if query == "" {
		query = "{ __typename }"
	}

	headers := map[string]string{}
	if svc.AuthToken != "" {
		headers["Authorization"] = "Bearer " + svc.AuthToken
	}

	result, gqlErrors, err := postJSON(ctx, svc.URL, map[string]string{"query": query}, headers)
	if err != nil || !result.HasResponse {
		return result, err
	}

	if msg := firstAuthError(gqlErrors); msg != "" {
		result.Success = false
		result.Error = "Authentication error"
	}
	return result, nil
}

func firstAuthError(errs []graphQLError) string {
	for _, e := range errs {
		lower := strings.ToLower(e.Message)
		if strings.Contains(lower, "auth") || strings.Contains(lower, "unauthorized") {
			return e.Message
		}
	}
	return ""
}
