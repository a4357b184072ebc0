package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventScreenEnter  EventType = "screen_enter"
	EventScreenLeave  EventType = "screen_leave"
	EventDispatch     EventType = "dispatch"
	EventResult       EventType = "result"
	EventRollback     EventType = "rollback"
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
)

// Outcome describes what applying an operation result did to the workflow.
type Outcome string

const (
	OutcomeAdvanced   Outcome = "advanced"  // Stack pushed
	OutcomeStayed     Outcome = "stayed"    // Succeeded, same screen
	OutcomeFailed     Outcome = "failed"    // Error captured in the slice
	OutcomeDiscarded  Outcome = "discarded" // Superseded dispatch or rolled-back epoch
	OutcomeStale      Outcome = "stale"     // Stored, but the user already left the dispatching screen
	OutcomeHalted     Outcome = "halted"    // No route
	OutcomeRolledBack Outcome = "rolled_back"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// ScreenEvent represents entry or exit from a screen.
type ScreenEvent struct {
	EventBase
	Screen Screen `json:"screen"`
}

// OperationEvent represents a dispatch or the arrival of its result.
type OperationEvent struct {
	EventBase
	Screen    Screen    `json:"screen"`
	Operation Operation `json:"operation"`
	Seq       uint64    `json:"seq"`
	RequestID string    `json:"request_id,omitempty"`
	// Payload is the request sent to the transport, request id included.
	Payload  map[string]any `json:"payload,omitempty"`
	Outcome  Outcome        `json:"outcome,omitempty"`
	Error    *ErrorInfo     `json:"error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// RollbackEvent reports a back-navigation attempt.
type RollbackEvent struct {
	EventBase
	From         Screen     `json:"from"`
	To           Screen     `json:"to,omitempty"`
	OldRequestID string     `json:"old_request_id"`
	NewRequestID string     `json:"new_request_id,omitempty"`
	Committed    bool       `json:"committed"`
	Attempt      int        `json:"attempt"`
	Error        *ErrorInfo `json:"error,omitempty"`
}

// SessionEvent reports the start or the end of a session.
type SessionEvent struct {
	EventBase
	Phase     Phase  `json:"phase"`
	RequestID string `json:"request_id,omitempty"`
}

// LifecycleHooks defines callbacks for workflow observability.
// Hooks run outside the session lock and must not call back into the flow synchronously.
type LifecycleHooks struct {
	OnScreenEnter  func(context.Context, *ScreenEvent)
	OnScreenLeave  func(context.Context, *ScreenEvent)
	OnDispatch     func(context.Context, *OperationEvent)
	OnResult       func(context.Context, *OperationEvent)
	OnRollback     func(context.Context, *RollbackEvent)
	OnSessionStart func(context.Context, *SessionEvent)
	OnSessionEnd   func(context.Context, *SessionEvent)
}

// Merge combines several hook sets; each callback fans out in order.
func Merge(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		out.OnScreenEnter = chain(out.OnScreenEnter, h.OnScreenEnter)
		out.OnScreenLeave = chain(out.OnScreenLeave, h.OnScreenLeave)
		out.OnDispatch = chain(out.OnDispatch, h.OnDispatch)
		out.OnResult = chain(out.OnResult, h.OnResult)
		out.OnRollback = chain(out.OnRollback, h.OnRollback)
		out.OnSessionStart = chain(out.OnSessionStart, h.OnSessionStart)
		out.OnSessionEnd = chain(out.OnSessionEnd, h.OnSessionEnd)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
