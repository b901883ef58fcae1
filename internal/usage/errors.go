package usage

import (
	"errors"
	"fmt"
)

// ErrorKind partitions fetch failures by how the rest of the system should
// react to them.
type ErrorKind string

const (
	// KindNotAuthenticated means no credential could be obtained at all.
	KindNotAuthenticated ErrorKind = "not_authenticated"
	// KindNetwork covers transport-level failures: timeouts, DNS, refused
	// connections, and non-auth HTTP error statuses.
	KindNetwork ErrorKind = "network"
	// KindAuth means a credential was presented and the API rejected it.
	KindAuth ErrorKind = "auth"
	// KindMalformed means a response arrived but could not be turned into a
	// valid Snapshot.
	KindMalformed ErrorKind = "malformed"
)

// Error is the typed failure produced by credential resolution and usage
// fetching. A cycle records exactly one of these when it fails.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps cause with a failure kind.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KindOf extracts the failure kind from err, defaulting to KindNetwork for
// untyped errors so an unclassified failure is treated as transient rather
// than user-actionable.
func KindOf(err error) ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindNetwork
}

// AsError normalises err into a *Error, wrapping untyped errors per KindOf.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return NewError(KindOf(err), err)
}
