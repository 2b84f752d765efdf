// Package errors defines the error taxonomy shared by the pgmflow endpoints.
//
// Every failure the endpoints surface is one of the types below. Callers
// inspect them with the standard library errors.As/errors.Is; every type that
// wraps a cause implements Unwrap.
//
// Taxonomy:
//   - InvalidURIError: malformed connection URI. Recoverable, the caller must
//     supply a corrected URI.
//   - ConfigurationError: a socket, option, bind, join or connect failure while
//     starting an endpoint. The failed attempt is always fully unwound.
//   - SendFailure: transient per-call send rejection.
//   - ReceiveError: per-call receive failure or empty delivery.
//   - ShutdownAnomaly: teardown trouble during Stop. Logged, never returned.
//   - NetworkError / ValidationError: lower level system and input errors.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned by per-frame operations on an endpoint that
	// is not in the Running state.
	ErrNotRunning = errors.New("endpoint not running")

	// ErrAlreadyRunning is returned by Start on an endpoint that is already
	// Starting or Running.
	ErrAlreadyRunning = errors.New("endpoint already running")
)

// NetworkError reports a failure of an operating system network call.
type NetworkError struct {
	Operation string // e.g. "join group", "set read deadline"
	Err       error  // underlying error
	Details   string // human readable context
}

func (e *NetworkError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("network error during %s: %v (%s)", e.Operation, e.Err, e.Details)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError reports an input value that failed validation.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s=%v: %s", e.Field, e.Value, e.Message)
}

// URIReason classifies an InvalidURIError.
type URIReason string

// URI failure reasons.
const (
	ReasonWrongScheme   URIReason = "wrong_scheme"
	ReasonMissingScheme URIReason = "missing_scheme"
	ReasonEmptyNetwork  URIReason = "empty_network"
	ReasonInvalidPort   URIReason = "invalid_port"
	ReasonTooManyFields URIReason = "too_many_fields"

	ReasonUnbalancedBrackets URIReason = "unbalanced_brackets"
)

// InvalidURIError reports a connection URI that could not be decoded.
//
// For ReasonWrongScheme, Scheme carries the offending scheme and Expected the
// scheme the endpoint accepts.
type InvalidURIError struct {
	Reason   URIReason
	URI      string
	Scheme   string
	Expected string
	Detail   string
}

func (e *InvalidURIError) Error() string {
	switch e.Reason {
	case ReasonWrongScheme:
		return fmt.Sprintf("invalid uri %q: wrong scheme (%s != %s)", e.URI, e.Scheme, e.Expected)
	default:
		if e.Detail != "" {
			return fmt.Sprintf("invalid uri %q: %s: %s", e.URI, e.Reason, e.Detail)
		}
		return fmt.Sprintf("invalid uri %q: %s", e.URI, e.Reason)
	}
}

// Stage names a step of transport configuration.
type Stage string

// Configuration stages, in execution order.
const (
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageAllocate Stage = "allocate"
	StageMode     Stage = "mode"
	StageOption   Stage = "option"
	StageBind     Stage = "bind"
	StageJoin     Stage = "join"
	StageConnect  Stage = "connect"
)

// ConfigurationError reports the stage at which starting an endpoint failed,
// together with the engine's diagnostic text verbatim.
type ConfigurationError struct {
	Stage         Stage
	Option        string // option name for StageOption, empty otherwise
	EngineMessage string
	Err           error
}

func (e *ConfigurationError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("configure transport: %s %s: %s", e.Stage, e.Option, e.EngineMessage)
	}
	return fmt.Sprintf("configure transport: %s: %s", e.Stage, e.EngineMessage)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SendFailure reports a send the engine did not fully accept. It does not
// change endpoint state; retry policy belongs to the caller.
type SendFailure struct {
	Status string // engine I/O status name
	Reason string
	Err    error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send failed (%s): %s", e.Status, e.Reason)
}

func (e *SendFailure) Unwrap() error { return e.Err }

// ReceiveError reports a receive that produced no frame.
type ReceiveError struct {
	EngineMessage string
	Err           error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive failed: %s", e.EngineMessage)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// ShutdownAnomaly describes a teardown step that did not complete cleanly.
// Endpoints log it; Stop never returns it.
type ShutdownAnomaly struct {
	Step  string // "join" or "close"
	Fatal bool   // true when a resource is known to have leaked
	Err   error
}

func (e *ShutdownAnomaly) Error() string {
	if e.Fatal {
		return fmt.Sprintf("shutdown %s leaked resources: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("shutdown %s: %v", e.Step, e.Err)
}

func (e *ShutdownAnomaly) Unwrap() error { return e.Err }
