// Package playerr is the error taxonomy shared by the playback engine.
package playerr

import (
	"errors"
	"fmt"
)

// Kind categorizes engine errors by how they must be propagated.
type Kind string

const (
	// KindUnsupported: the platform refused an operation (e.g. a second source
	// node for one element). Logged, never surfaced.
	KindUnsupported Kind = "UNSUPPORTED"
	// KindPlaybackSource: the media source was rejected (CORS/format).
	KindPlaybackSource Kind = "PLAYBACK_SOURCE"
	// KindAborted: a load superseded by a newer one. Always swallowed.
	KindAborted Kind = "ABORTED"
	// KindConnectivity: a remote track was requested while offline.
	KindConnectivity Kind = "CONNECTIVITY"
	// KindDesync: party state diverged; followers self-correct.
	KindDesync Kind = "DESYNC"
	// KindValidation: bad input from a caller.
	KindValidation Kind = "VALIDATION"
)

// Sentinels usable with errors.Is.
var (
	ErrUnsupported    = &Error{Kind: KindUnsupported}
	ErrPlaybackSource = &Error{Kind: KindPlaybackSource}
	ErrAborted        = &Error{Kind: KindAborted}
	ErrConnectivity   = &Error{Kind: KindConnectivity}
	ErrDesync         = &Error{Kind: KindDesync}
	ErrValidation     = &Error{Kind: KindValidation}
)

// Error is the structured engine error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrAborted) works
// for every aborted error regardless of Op or Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Unsupported wraps a platform refusal.
func Unsupported(op string, cause error) *Error {
	return New(KindUnsupported, op, "operation not supported by the platform", cause)
}

// Aborted wraps a superseded load.
func Aborted(op string, cause error) *Error {
	return New(KindAborted, op, "superseded by a newer request", cause)
}

// PlaybackSource wraps a rejected source.
func PlaybackSource(op, message string, cause error) *Error {
	return New(KindPlaybackSource, op, message, cause)
}

// Connectivity reports an offline attempt.
func Connectivity(op, message string) *Error {
	return New(KindConnectivity, op, message, nil)
}

// Validation reports a caller mistake.
func Validation(op, message string) *Error {
	return New(KindValidation, op, message, nil)
}

// KindOf returns the kind of the first *Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAborted reports whether err is a superseded load.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
