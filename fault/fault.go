// Package fault defines the error taxonomy for the data layer: stable
// codes, a severity scale, and a retryable flag that drives the retry
// and circuit breaker policies.
package fault

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies a failure class. Values are stable across releases and
// safe to log, persist, and match on.
type Code string

const (
	CodeNetwork     Code = "NETWORK_ERROR"
	CodeFirestore   Code = "FIRESTORE_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodePermission  Code = "PERMISSION_ERROR"
	CodeNotFound    Code = "DATA_NOT_FOUND"
	CodeConflict    Code = "SAVE_CONFLICT"
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)

// Severity ranks how loudly a failure should be reported. Critical
// failures additionally reach the administrator notification path.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is a classified failure. It wraps an optional cause and plays
// nicely with errors.Is/As.
type Error struct {
	Code      Code
	Severity  Severity
	Retryable bool
	Op        string // logical operation, e.g. "store.getAll"
	Message   string
	Err       error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	s := string(e.Code)
	if e.Op != "" {
		s += " " + e.Op
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error with an explicit classification.
func New(code Code, sev Severity, retryable bool, msg string) *Error {
	return &Error{Code: code, Severity: sev, Retryable: retryable, Message: msg}
}

// Network marks a transient connectivity failure.
func Network(op string, err error) *Error {
	return &Error{Code: CodeNetwork, Severity: SeverityLow, Retryable: true, Op: op, Err: err}
}

// Firestore wraps a generic remote-store failure.
func Firestore(op string, err error) *Error {
	return &Error{Code: CodeFirestore, Severity: SeverityMedium, Retryable: true, Op: op, Err: err}
}

// Validation marks input rejected before any remote call.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Severity: SeverityLow, Retryable: false, Message: fmt.Sprintf(format, args...)}
}

// Permission marks an authorization failure.
func Permission(op string, err error) *Error {
	return &Error{Code: CodePermission, Severity: SeverityHigh, Retryable: false, Op: op, Err: err}
}

// NotFound marks an absent entity.
func NotFound(collection, id string) *Error {
	return &Error{
		Code:     CodeNotFound,
		Severity: SeverityLow,
		Message:  fmt.Sprintf("%s/%s not found", collection, id),
	}
}

// Conflict marks a concurrent modification; resolving it needs user
// intervention, so it is not retryable.
func Conflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Severity: SeverityMedium, Retryable: false, Message: fmt.Sprintf(format, args...)}
}

// CircuitOpen is the synthetic failure returned while a breaker is
// short-circuiting calls. Callers should back off until the cooldown
// expires rather than retry immediately.
func CircuitOpen(name string, wait time.Duration) *Error {
	return &Error{
		Code:     CodeCircuitOpen,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("circuit %q open, retry in %s", name, wait.Round(time.Millisecond)),
	}
}

// Retryable reports whether err is worth retrying. Classified errors
// carry the answer; unclassified errors fall back to the network
// heuristics in Classify.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return looksTransient(err)
}

// CodeOf extracts the code from a classified error, or "" if err was
// never classified.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// SeverityOf extracts the severity from a classified error, or "" if
// err was never classified.
func SeverityOf(err error) Severity {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Severity
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
