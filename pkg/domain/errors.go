package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the presentation-facing API.
var (
	// ErrUnknownOperation is returned when an operation name is not in the catalog.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrOperationNotAllowed is returned when the current screen has no transition for the operation.
	ErrOperationNotAllowed = errors.New("operation not allowed on current screen")

	// ErrNoRequestID is returned when an operation needs a request id and none was assigned yet.
	ErrNoRequestID = errors.New("no request id assigned")

	// ErrRollbackInFlight is returned while a rollback is waiting for server acknowledgement.
	ErrRollbackInFlight = errors.New("rollback in flight")

	// ErrOperationBusy is returned by GoBack while a create or mutate call has not answered yet.
	ErrOperationBusy = errors.New("state-changing operation in flight")

	// ErrRollbackExhausted is returned when the rollback retry budget is spent; only abandonment remains.
	ErrRollbackExhausted = errors.New("rollback retries exhausted")

	// ErrAtStart is returned by GoBack on the start screen when there is no transaction to roll back.
	ErrAtStart = errors.New("already at start screen")

	// ErrHalted is returned after a no-route contract violation stopped the workflow.
	ErrHalted = errors.New("workflow halted")

	// ErrSessionClosed is returned once the workflow completed or was abandoned.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotComplete is returned by Complete when the delivery step has not succeeded.
	ErrNotComplete = errors.New("workflow not ready to complete")

	// ErrSessionNotFound is returned when a session ID cannot be found.
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorKind classifies an operation failure.
type ErrorKind string

const (
	// KindNetwork is a transport failure; retryable.
	KindNetwork ErrorKind = "network"
	// KindValidation means the server (or the boundary) rejected the payload; needs user correction.
	KindValidation ErrorKind = "validation"
	// KindNotFound means an empty result set; the user may only go back.
	KindNotFound ErrorKind = "not_found"
	// KindRollbackFailed blocks navigation; the user may retry or abandon.
	KindRollbackFailed ErrorKind = "rollback_failed"
	// KindProtocol means the response did not match the operation's payload shape.
	KindProtocol ErrorKind = "protocol"
)

// Known reports whether k is one of the declared kinds.
func (k ErrorKind) Known() bool {
	switch k {
	case KindNetwork, KindValidation, KindNotFound, KindRollbackFailed, KindProtocol:
		return true
	}
	return false
}

// Retryable reports whether retrying the same call may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindRollbackFailed
}

// ErrorInfo is the failure stored in a RequestSlice.
// Transports may return it directly to classify server errors.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *ErrorInfo) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ErrorInfo) Unwrap() error { return e.Cause }

// Retryable reports whether the failure offers a retry affordance.
func (e *ErrorInfo) Retryable() bool { return e != nil && e.Kind.Retryable() }

// Clone returns a copy safe to hand out of the session lock.
func (e *ErrorInfo) Clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// NewError builds an ErrorInfo of the given kind.
func NewError(kind ErrorKind, code, message string) *ErrorInfo {
	return &ErrorInfo{Kind: kind, Code: code, Message: message}
}

// Classify converts any transport error into an ErrorInfo.
// Errors that are not already classified are treated as network failures.
func Classify(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info.Clone()
	}
	return &ErrorInfo{Kind: KindNetwork, Code: "transport", Message: err.Error(), Cause: err}
}

// NoRouteError reports an attempt to apply an undefined transition.
// It is a programming-contract violation, not a user-facing error.
type NoRouteError struct {
	Screen    Screen
	Operation Operation
	Detail    string
}

func (e *NoRouteError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("no route: screen %q: %s", e.Screen, e.Detail)
	}
	return fmt.Sprintf("no route: screen %q operation %q: %s", e.Screen, e.Operation, e.Detail)
}
