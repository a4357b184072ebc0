package chequeflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/google/uuid"
)

// JournalHooks returns lifecycle hooks that append every commit against the
// server to j. Append failures are logged and never interrupt the workflow.
func JournalHooks(j ports.Journal, logger *slog.Logger, now func() time.Time) domain.LifecycleHooks {
	if now == nil {
		now = time.Now
	}
	appendEntry := func(ctx context.Context, e ports.Entry) {
		e.ID = uuid.NewString()
		e.At = now()
		if err := j.Append(ctx, e); err != nil {
			logger.ErrorContext(ctx, "journal append failed", "session_id", e.SessionID, "type", e.Type, "error", err)
		}
	}

	return domain.LifecycleHooks{
		OnResult: func(ctx context.Context, e *domain.OperationEvent) {
			if e.Outcome != domain.OutcomeAdvanced {
				return
			}
			appendEntry(ctx, ports.Entry{
				SessionID: e.SessionID,
				Type:      ports.EntryForward,
				Screen:    e.Screen,
				Operation: e.Operation,
				RequestID: e.RequestID,
				Payload:   e.Payload,
			})
		},
		OnRollback: func(ctx context.Context, e *domain.RollbackEvent) {
			entry := ports.Entry{
				SessionID:    e.SessionID,
				Type:         ports.EntryRollback,
				Screen:       e.From,
				Operation:    domain.OpRollback,
				RequestID:    e.OldRequestID,
				NewRequestID: e.NewRequestID,
			}
			if !e.Committed {
				entry.Type = ports.EntryRollbackFailed
				if e.Error != nil {
					entry.Detail = e.Error.Message
				}
			}
			appendEntry(ctx, entry)
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			var t ports.EntryType
			switch e.Phase {
			case domain.PhaseCompleted:
				t = ports.EntryCompleted
			case domain.PhaseAbandoned:
				t = ports.EntryAbandoned
			case domain.PhaseHalted:
				t = ports.EntryHalted
			default:
				return
			}
			appendEntry(ctx, ports.Entry{SessionID: e.SessionID, Type: t, RequestID: e.RequestID})
		},
	}
}
