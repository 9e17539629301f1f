package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the backend.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Code       string
	Body       string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, msg)
}

// IsRetryable is true for server errors and throttling. Other client errors
// are permanent.
func (e *Error) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err carries a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}

func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	// transport failures
	return err != nil
}

type errorBody struct {
	Error  string          `json:"error"`
	Code   string          `json:"code"`
	Detail json.RawMessage `json:"detail"`
}

func newError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, StatusCode: status, Body: string(body)}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return e
	}
	e.Code = parsed.Code
	e.Message = parsed.Error
	if e.Message == "" && len(parsed.Detail) > 0 {
		var detail string
		if json.Unmarshal(parsed.Detail, &detail) == nil {
			e.Message = detail
		} else {
			e.Message = string(parsed.Detail)
		}
	}
	return e
}
