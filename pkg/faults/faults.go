// Package faults defines the failure taxonomy shared by the analysis pipeline.
//
// Remote clients report failures by wrapping one of the sentinel errors below:
//
//	return fmt.Errorf("generate content: %w", faults.ErrRateLimited)
//
// The retry policy turns those into an *Error carrying a Kind, and Classify turns any
// error into the user-facing models.ErrorResult.
package faults

import (
	"errors"
	"fmt"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// Kind is the classification of a domain error.
type Kind = models.ErrorKind

const (
	KindQuotaExceeded        = models.ErrorQuotaExceeded
	KindAuthenticationFailed = models.ErrorAuthenticationFailed
	KindAnalysisFailed       = models.ErrorAnalysisFailed
	KindInvalidInput         = models.ErrorInvalidInput
	KindUnknown              = models.ErrorUnknown
)

// Failure modes of the remote model API.
var (
	ErrRateLimited      = errors.New("rate limited")
	ErrTimeout          = errors.New("deadline exceeded")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnavailable      = errors.New("service unavailable")
)

// Error is a classified domain error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind wrapping err.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Invalid creates a local input validation error.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown if err is not a classified Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is a transient remote failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}
