package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/chequeflow/pkg/adapters/memory"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_Contract(t *testing.T) {
	ports.RunJournalContract(t, memory.NewJournal())
}

func TestJournal_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	j := memory.NewJournal()
	require.NoError(t, j.Append(ctx, ports.Entry{ID: "a", SessionID: "s", Type: ports.EntryForward}))

	got, err := j.List(ctx, "s")
	require.NoError(t, err)
	got[0].ID = "mutated"

	again, err := j.List(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].ID)
}
