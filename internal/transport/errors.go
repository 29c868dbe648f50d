package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// StatusError is returned for any non-2xx status other than 400.
type StatusError struct {
	Method     string
	StatusCode int
	Body       []byte
	retryAfter time.Duration
}

func newStatusError(method string, resp *http.Response, body []byte) *StatusError {
	e := &StatusError{Method: method, StatusCode: resp.StatusCode, Body: body}
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		e.retryAfter = time.Duration(s) * time.Second
	}
	var env struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if json.Unmarshal(body, &env) == nil && env.Parameters.RetryAfter > 0 {
		e.retryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
	}
	return e
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Method, e.StatusCode, body)
}

// IsRetryable returns true for 429 and 5xx.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryAfter returns the server's back-off hint, from the Retry-After header
// or the envelope's retry_after parameter.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}
