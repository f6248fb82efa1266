package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrBreakerOpen is returned while the engine circuit breaker rejects calls
var ErrBreakerOpen = errors.New("workflow engine unavailable, circuit breaker open")

// APIError is a non 2xx answer of the workflow engine
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("engine error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if err is an engine 404
func IsNotFound(err error) bool {
	apiErr := AsAPIError(err)
	return apiErr != nil && apiErr.StatusCode == http.StatusNotFound
}

func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if payload.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}
