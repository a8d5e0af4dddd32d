package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"pulsewatch/model"
)

var sharedClient = &http.Client{}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLBody struct {
	Data   interface{}    `json:"data,omitempty"`
	Errors []graphQLError `json:"errors,omitempty"`
}

// postJSON issues a POST with a JSON body and returns the raw response
// bytes (capped at model.MaxRawBodyBytes) alongside the status code.
// Transport failures — including context deadline exceeded — are
// reported through the returned ProbeResult rather than err; err is
// only set for request construction failures, which cannot occur with
// a well-formed URL and body.
func postJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) (model.ProbeResult, []graphQLError, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.ProbeResult{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return model.ProbeResult{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sharedClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.ProbeResult{Success: false, HasResponse: false, Error: "Request timeout"}, nil, nil
		}
		return model.ProbeResult{Success: false, HasResponse: false, Error: err.Error()}, nil, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, model.MaxRawBodyBytes))

	result := model.ProbeResult{
		HasResponse: true,
		HTTPStatus:  resp.StatusCode,
		RawBody:     raw,
	}

	var decoded graphQLBody
	if jsonErr := json.Unmarshal(raw, &decoded); jsonErr != nil {
		result.Success = false
		result.Error = jsonErr.Error()
		return result, nil, nil
	}
	result.Data = decoded.Data

	result.Success = resp.StatusCode == http.StatusOK
	if !result.Success && result.Error == "" {
		result.Error = resp.Status
	}
	return result, decoded.Errors, nil
}
