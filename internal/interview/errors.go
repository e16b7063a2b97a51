package interview

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures by how the session must react to them.
type Kind int

const (
	// KindValidation covers bad client input; reported to the client, session continues.
	KindValidation Kind = iota + 1
	// KindTransient covers failed or timed out external calls; callers degrade to a fallback.
	KindTransient
	// KindResource covers local resource failures such as temp files.
	KindResource
	// KindFatalSetup covers failures while establishing a session; the connection is closed.
	KindFatalSetup
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindResource:
		return "resource"
	case KindFatalSetup:
		return "fatal_setup"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Message is safe to show to a client; Err is not.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error wrapping err.
func Errorf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the classification of err, or 0 when it is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
