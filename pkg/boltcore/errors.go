// Package boltcore holds the error taxonomy shared by every other package in
// this module (spec §7 "ERROR HANDLING DESIGN"): a stable string Code, a
// human message, and an optional causal chain for retried operations. It
// follows the teacher's pkg/auth/auth.go sentinel-Err-vars idiom, generalized
// from a fixed enum of auth failures to the open set of Bolt error kinds.
package boltcore

import (
	"errors"
	"fmt"
)

// Code is one of the stable taxonomy kinds from spec §7. It identifies the
// *kind* of failure, not a particular instance — callers switch on Code, not
// on error identity.
type Code string

const (
	CodeProtocolError       Code = "protocol_error"
	CodeAuthentication      Code = "authentication"
	CodeAuthorizationExpired Code = "authorization_expired"
	CodeTokenExpired        Code = "token_expired"
	CodeSecurity            Code = "security"
	CodeServiceUnavailable  Code = "service_unavailable"
	CodeSessionExpired      Code = "session_expired"
	CodeTransient           Code = "transient"
	CodeNotALeader          Code = "not_a_leader"
	CodeForbiddenOnReadOnly Code = "forbidden_on_readonly"
	CodeRoutingFailure      Code = "routing_failure"
	CodeAcquisitionTimeout  Code = "acquisition_timeout"
	CodeClientError         Code = "client_error"
	CodePoolClosed          Code = "pool_closed"
)

// Sentinel conditions that don't carry a server-supplied message, following
// the teacher's Err* package-var pattern.
var (
	ErrPoolClosed        = errors.New("boltcore: connection pool is closed")
	ErrConnectionBroken  = errors.New("boltcore: connection is broken")
	ErrHandshakeRejected = errors.New("boltcore: server rejected every proposed protocol version")
	ErrNoRouters         = errors.New("boltcore: routing table has no routers")
)

// DriverError is the user-visible error type for every failure this module
// raises (spec §7: "Every error carries a stable code string, a human
// message, and an optional list of causally related prior errors").
type DriverError struct {
	Code    Code
	Message string
	Cause   []error
}

func (e *DriverError) Error() string {
	if len(e.Cause) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (after %d prior attempt(s))", e.Code, e.Message, len(e.Cause))
}

// Unwrap exposes the most recent cause so errors.Is/As chains through it.
func (e *DriverError) Unwrap() error {
	if len(e.Cause) == 0 {
		return nil
	}
	return e.Cause[len(e.Cause)-1]
}

// New constructs a DriverError with no prior causes.
func New(code Code, message string) *DriverError {
	return &DriverError{Code: code, Message: message}
}

// Newf constructs a DriverError with a formatted message.
func Newf(code Code, format string, args ...any) *DriverError {
	return &DriverError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause appends err to the Cause list, returning the same DriverError so
// it can be chained at retry sites (spec §4.8 "the final error carries the
// list of observed errors").
func (e *DriverError) WithCause(err error) *DriverError {
	e.Cause = append(e.Cause, err)
	return e
}

// CodeOf extracts the Code from err if it is (or wraps) a *DriverError,
// otherwise returns CodeClientError as a conservative default.
func CodeOf(err error) Code {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeClientError
}

// IsSecurity reports whether code belongs to the security-class group that
// spec §4.8 routes to onSecurity.
func IsSecurity(code Code) bool {
	switch code {
	case CodeAuthentication, CodeAuthorizationExpired, CodeTokenExpired, CodeSecurity:
		return true
	default:
		return false
	}
}

// IsAvailability reports whether code is a transient general-unavailability
// class that spec §4.8 routes to onUnavailability (forgets the address from
// both readers and writers).
func IsAvailability(code Code) bool {
	return code == CodeServiceUnavailable || code == CodeSessionExpired
}

// IsWriteFailure reports whether code indicates the address should be
// forgotten as a writer only (spec §4.8 onWriteFailure).
func IsWriteFailure(code Code) bool {
	return code == CodeNotALeader || code == CodeForbiddenOnReadOnly
}

// IsRetriable reports whether code is retriable by the managed-transaction
// retry loop (spec §4.8): service_unavailable, session_expired, or transient
// that is not one of the two named non-retriable transient subcodes.
func IsRetriable(code Code, transientSubCode string) bool {
	switch code {
	case CodeServiceUnavailable, CodeSessionExpired:
		return true
	case CodeTransient:
		return transientSubCode != "Transaction.Terminated" && transientSubCode != "Transaction.LockClientStopped"
	default:
		return false
	}
}
