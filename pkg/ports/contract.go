package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunJournalContract runs a suite of tests to verify that a Journal implementation
// adheres to the defined interface contract.
func RunJournalContract(t *testing.T, journal Journal) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Append and List Preserve Order", func(t *testing.T) {
		entries := []Entry{
			{ID: "e1", SessionID: sessionID, Type: EntryForward, Screen: domain.ScreenStart, Operation: domain.OpInitTransaction, RequestID: "R1"},
			{ID: "e2", SessionID: sessionID, Type: EntryRollbackFailed, Screen: domain.ScreenSheets, Operation: domain.OpRollback, RequestID: "R1"},
			{ID: "e3", SessionID: sessionID, Type: EntryRollback, Screen: domain.ScreenSheets, Operation: domain.OpRollback, RequestID: "R1", NewRequestID: "R2"},
		}
		for i := range entries {
			entries[i].At = time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
			require.NoError(t, journal.Append(ctx, entries[i]))
		}

		got, err := journal.List(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i := range entries {
			assert.Equal(t, entries[i].ID, got[i].ID)
			assert.Equal(t, entries[i].Type, got[i].Type)
			assert.True(t, entries[i].At.Equal(got[i].At))
		}
		assert.Equal(t, "R2", got[2].NewRequestID)
	})

	t.Run("List Unknown Session", func(t *testing.T) {
		got, err := journal.List(ctx, "non-existent-"+sessionID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Sessions", func(t *testing.T) {
		other := sessionID + "-other"
		require.NoError(t, journal.Append(ctx, Entry{ID: "o1", SessionID: other, Type: EntryAbandoned, At: time.Now()}))
		defer func() { _ = journal.Delete(ctx, other) }()

		ids, err := journal.Sessions(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
		assert.Contains(t, ids, other)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, journal.Delete(ctx, sessionID))

		got, err := journal.List(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, got)

		ids, err := journal.Sessions(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, sessionID)
	})
}
