package ports

import (
	"context"
	"time"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// EntryType classifies a journal entry.
type EntryType string

const (
	EntryForward        EntryType = "forward"         // A forward operation advanced the stack
	EntryRollback       EntryType = "rollback"        // The server acknowledged a rollback
	EntryRollbackFailed EntryType = "rollback_failed" // The rollback was refused; the stack did not move
	EntryCompleted      EntryType = "completed"
	EntryAbandoned      EntryType = "abandoned"
	EntryHalted         EntryType = "halted"
)

// Entry is one row of the audit trail.
type Entry struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"session_id"`
	Type         EntryType        `json:"type"`
	Screen       domain.Screen    `json:"screen,omitempty"`
	Operation    domain.Operation `json:"operation,omitempty"`
	RequestID    string           `json:"request_id,omitempty"`
	NewRequestID string           `json:"new_request_id,omitempty"`
	Detail       string           `json:"detail,omitempty"`
	// Payload is the request of a forward entry.
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Journal records what the workflow committed against the server.
// Transactions reserve real instruments, so every commit and rollback is
// kept for reconciliation even though the workflow itself is not persisted.
type Journal interface {
	// Append adds an entry to the session's trail.
	Append(ctx context.Context, entry Entry) error

	// List returns the session's entries in append order.
	// An unknown session yields an empty list.
	List(ctx context.Context, sessionID string) ([]Entry, error)

	// Sessions returns the ids of sessions that have entries.
	Sessions(ctx context.Context) ([]string, error)

	// Delete drops the session's trail.
	Delete(ctx context.Context, sessionID string) error
}
