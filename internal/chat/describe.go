package chat

import (
	"errors"

	"github.com/zulandar/momotalk/internal/completion"
	"github.com/zulandar/momotalk/internal/store"
)

// Class names an error category for callers that map errors to transport
// responses.
type Class string

const (
	ClassNone                Class = ""
	ClassInvalid             Class = "invalid"
	ClassNotFound            Class = "not_found"
	ClassCompletionAuth      Class = "completion_auth"
	ClassCompletionTransport Class = "completion_transport"
	ClassCompletionStatus    Class = "completion_status"
	ClassCompletionResponse  Class = "completion_response"
	ClassStorage             Class = "storage"
	ClassInternal            Class = "internal"
)

// Classify returns the category of an exchange error.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var (
		ae *completion.AuthError
		te *completion.TransportError
		se *completion.StatusError
		re *completion.ResponseError
		st *store.StorageError
	)
	switch {
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, store.ErrInvalid):
		return ClassInvalid
	case errors.Is(err, store.ErrNotFound):
		return ClassNotFound
	case errors.As(err, &ae):
		return ClassCompletionAuth
	case errors.As(err, &te):
		return ClassCompletionTransport
	case errors.As(err, &se):
		return ClassCompletionStatus
	case errors.As(err, &re):
		return ClassCompletionResponse
	case errors.As(err, &st):
		return ClassStorage
	default:
		return ClassInternal
	}
}

// Describe renders an exchange error as a single user-facing line.
// Completion failures are prefixed with "LLM chat failed: ".
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case ClassCompletionAuth, ClassCompletionTransport, ClassCompletionStatus, ClassCompletionResponse:
		return "LLM chat failed: " + completionCause(err).Error()
	default:
		return err.Error()
	}
}

// completionCause strips the chat wrapper so the message starts at the
// completion error itself.
func completionCause(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch e.(type) {
		case *completion.AuthError, *completion.TransportError, *completion.StatusError, *completion.ResponseError:
			return e
		}
	}
	return err
}
