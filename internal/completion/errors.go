package completion

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoChoices is the cause of a ResponseError for a well-formed reply that
// carries zero choices.
var ErrNoChoices = errors.New("completion: response contained no choices")

// AuthError reports a missing API key or a credential the endpoint rejected.
// StatusCode is zero when the key was missing and no request was sent.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return "completion: no API key configured"
	}
	return fmt.Sprintf("completion: credential rejected (status %d): %s", e.StatusCode, e.Body)
}

// TransportError reports a failure that produced no HTTP response:
// connection refused, DNS failure, or timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-success HTTP status other than 401/403.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion: request failed: status %d %s: %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// ResponseError reports a success status whose body could not be used:
// either it did not parse, or it held no choices (Err is ErrNoChoices).
type ResponseError struct {
	Body string
	Err  error
}

func (e *ResponseError) Error() string {
	if errors.Is(e.Err, ErrNoChoices) {
		return e.Err.Error()
	}
	return fmt.Sprintf("completion: parse response: %v; raw response: %s", e.Err, e.Body)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Retryable reports whether err is a transient failure that a caller may
// retry: transport errors, 429, and 5xx statuses.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return false
}
