package api

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned when no token is configured or the backend answers 401.
var ErrAuthRequired = errors.New("authentication required")

// TransportError wraps network failures and retryable server errors.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx answer.
type StatusError struct {
	Status  int
	Message string
	Body    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("arena api error: status=%d message=%s", e.Status, e.Message)
	}
	return fmt.Sprintf("arena api error: status=%d body=%s", e.Status, e.Body)
}

// SubmissionRejectedError means the backend declined a solved puzzle.
type SubmissionRejectedError struct {
	PuzzleID string
	Status   int
	Message  string
}

func (e *SubmissionRejectedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "submission rejected"
	}
	if e.Status != 0 {
		return fmt.Sprintf("puzzle %s: %s (status=%d)", e.PuzzleID, msg, e.Status)
	}
	return fmt.Sprintf("puzzle %s: %s", e.PuzzleID, msg)
}

// IsTransport reports whether err is a network-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
