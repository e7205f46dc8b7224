package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/agentdock/agentdock/pkg/engine"
)

// classifyStatus maps an API error response onto the engine error
// classes. Rate limiting and 502/503/504 are retryable; authentication,
// validation, and missing resources are not.
func classifyStatus(resp *http.Response, body []byte, method, path string) *engine.EngineError {
	message := apiMessage(body)
	if message == "" {
		message = fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		e := engine.NewThrottledError(message, nil)
		if hint := retryAfter(resp); hint > 0 {
			e = e.WithRetryAfter(hint)
		}
		return e
	case http.StatusUnauthorized, http.StatusForbidden:
		return engine.NewPermanentError(message, nil).WithCode(engine.ErrCodeAuth)
	case http.StatusNotFound:
		return engine.NewPermanentError(message, nil).WithCode(engine.ErrCodeNotFound)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return engine.NewPermanentError(message, nil).WithCode(engine.ErrCodeValidation)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return engine.NewTransientError(message, nil)
	default:
		return engine.NewPermanentError(message, nil).WithCode(engine.ErrCodeInternal)
	}
}

// apiMessage pulls the backend's error message out of a response body.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// retryAfter parses a Retry-After header expressed in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
