package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tubepulse/tubepulse/pkg/faults"
)

// APIError is a non-2xx response from the model API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	// Err is the fault sentinel the status maps to, if any.
	Err error
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini API %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini API %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// parseAPIError builds an APIError from a failed response.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Message: http.StatusText(statusCode)}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Status = env.Error.Status
	} else if len(body) > 0 {
		apiErr.Message = truncate(string(body), 200)
	}

	apiErr.Err = statusFault(statusCode, apiErr.Status)
	return apiErr
}

// statusFault maps an HTTP status and a Google RPC status name to a fault sentinel.
func statusFault(code int, status string) error {
	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return faults.ErrRateLimited
	case code == http.StatusUnauthorized || status == "UNAUTHENTICATED":
		return faults.ErrUnauthenticated
	case code == http.StatusForbidden || status == "PERMISSION_DENIED":
		return faults.ErrPermissionDenied
	case code == http.StatusGatewayTimeout || status == "DEADLINE_EXCEEDED":
		return faults.ErrTimeout
	case code == http.StatusBadRequest || status == "INVALID_ARGUMENT":
		return faults.ErrInvalidArgument
	default:
		return nil
	}
}

// outcome is the metrics label for the result of one remote call.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, faults.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, faults.ErrTimeout):
		return "timeout"
	case errors.Is(err, faults.ErrUnauthenticated), errors.Is(err, faults.ErrPermissionDenied):
		return "auth_error"
	case errors.Is(err, faults.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, faults.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// clientFault reports errors caused by the request itself rather than the service.
func clientFault(err error) bool {
	return errors.Is(err, faults.ErrInvalidArgument) ||
		errors.Is(err, faults.ErrUnauthenticated) ||
		errors.Is(err, faults.ErrPermissionDenied)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
