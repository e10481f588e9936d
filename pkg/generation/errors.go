package generation

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure. The HTTP layer maps each kind to a
// status code.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindDeviceUnavailable
	KindEngineFailure
	KindOverloaded
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindDeviceUnavailable:
		return "device_unavailable"
	case KindEngineFailure:
		return "engine_failure"
	case KindOverloaded:
		return "overloaded"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

const (
	engineFailureDetail = "Text generation failed."
	overloadedDetail    = "Generation queue is full."
	timeoutDetail       = "Generation timed out."
)

// ErrOverloaded is returned by an Engine that cannot accept more work.
var ErrOverloaded = errors.New("generation queue is full")

// Error is a classified generation failure. Detail is safe to return to
// callers; Err carries the underlying cause for logs.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidArgument reports a request that fails validation.
func InvalidArgument(detail string) *Error {
	return &Error{Kind: KindInvalidArgument, Detail: detail}
}

// DeviceUnavailable reports a request for a device the host cannot serve.
func DeviceUnavailable(d Device) *Error {
	return &Error{
		Kind:   KindDeviceUnavailable,
		Detail: fmt.Sprintf("%s is not available but '%s' was requested.", d.displayName(), d),
	}
}

// EngineFailure wraps an engine error behind a generic detail.
func EngineFailure(err error) *Error {
	return &Error{Kind: KindEngineFailure, Detail: engineFailureDetail, Err: err}
}

// Overloaded reports that the engine refused the job.
func Overloaded(err error) *Error {
	return &Error{Kind: KindOverloaded, Detail: overloadedDetail, Err: err}
}

// Timeout reports that the caller stopped waiting for the engine.
func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Detail: timeoutDetail, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindUnknown
}
