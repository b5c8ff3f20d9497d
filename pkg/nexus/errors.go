package nexus

import (
	"errors"
	"fmt"
)

// ErrorCode classifies the error kinds the core surfaces, per §7.
type ErrorCode int

const (
	ErrNotFound ErrorCode = iota
	ErrIncomplete
	ErrInvalid
	ErrGeometryMismatch
	ErrOpenFailed
	ErrCloseFailed
	ErrDestroyFailed
	ErrDeviceCreate
	ErrLabelProbeFailed
	ErrLabelMismatch
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrIncomplete:
		return "Incomplete"
	case ErrInvalid:
		return "Invalid"
	case ErrGeometryMismatch:
		return "GeometryMismatch"
	case ErrOpenFailed:
		return "OpenFailed"
	case ErrCloseFailed:
		return "CloseFailed"
	case ErrDestroyFailed:
		return "DestroyFailed"
	case ErrDeviceCreate:
		return "DeviceCreate"
	case ErrLabelProbeFailed:
		return "LabelProbeFailed"
	case ErrLabelMismatch:
		return "LabelMismatch"
	case ErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the core's single error type: a classified code plus enough
// context to diagnose the failure, wrapping an underlying cause where one
// exists.
type Error struct {
	Code      ErrorCode
	Op        string
	NexusName string
	ChildName string
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("nexus: %s: %s", e.Op, e.Code)
	if e.NexusName != "" {
		msg += fmt.Sprintf(" nexus=%s", e.NexusName)
	}
	if e.ChildName != "" {
		msg += fmt.Sprintf(" child=%s", e.ChildName)
	}
	if e.Reason != "" {
		msg += fmt.Sprintf(": %s", e.Reason)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, &nexus.Error{Code: nexus.ErrNotFound}) style
// matching against the classification alone, without requiring
// field-identical Error values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code ErrorCode, op string, opts ...func(*Error)) *Error {
	e := &Error{Code: code, Op: op}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func withNexus(name string) func(*Error) { return func(e *Error) { e.NexusName = name } }
func withChild(name string) func(*Error) { return func(e *Error) { e.ChildName = name } }
func withReason(reason string) func(*Error) {
	return func(e *Error) { e.Reason = reason }
}
func withCause(err error) func(*Error) { return func(e *Error) { e.Err = err } }

func newNotFoundError(op, nexusName, childName string) *Error {
	return newError(ErrNotFound, op, withNexus(nexusName), withChild(childName))
}

func newIncompleteError(op, nexusName, reason string) *Error {
	return newError(ErrIncomplete, op, withNexus(nexusName), withReason(reason))
}

func newInvalidError(op, nexusName, reason string) *Error {
	return newError(ErrInvalid, op, withNexus(nexusName), withReason(reason))
}

func newGeometryMismatchError(op, nexusName, childName, reason string) *Error {
	return newError(ErrGeometryMismatch, op, withNexus(nexusName), withChild(childName), withReason(reason))
}

func newOpenFailedError(op, nexusName, childName string, cause error) *Error {
	return newError(ErrOpenFailed, op, withNexus(nexusName), withChild(childName), withCause(cause))
}

func newCloseFailedError(op, nexusName, childName string, cause error) *Error {
	return newError(ErrCloseFailed, op, withNexus(nexusName), withChild(childName), withCause(cause))
}

func newDestroyFailedError(op, nexusName, childName string, cause error) *Error {
	return newError(ErrDestroyFailed, op, withNexus(nexusName), withChild(childName), withCause(cause))
}

func newDeviceCreateError(op, nexusName, childName string, cause error) *Error {
	return newError(ErrDeviceCreate, op, withNexus(nexusName), withChild(childName), withCause(cause))
}

func newLabelProbeFailedError(op, nexusName, childName string, cause error) *Error {
	return newError(ErrLabelProbeFailed, op, withNexus(nexusName), withChild(childName), withCause(cause))
}

func newLabelMismatchError(op, nexusName, reason string) *Error {
	return newError(ErrLabelMismatch, op, withNexus(nexusName), withReason(reason))
}

func newInternalError(op, nexusName, reason string) *Error {
	return newError(ErrInternal, op, withNexus(nexusName), withReason(reason))
}

// IsNotFound reports whether err is a *Error with Code == ErrNotFound,
// anywhere in its Unwrap chain.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrNotFound
	}
	return false
}
