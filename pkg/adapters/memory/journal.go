package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/chequeflow/pkg/ports"
)

// Journal implements ports.Journal in memory.
// Safe for concurrent use.
type Journal struct {
	data map[string][]ports.Entry
	mu   sync.RWMutex
}

// NewJournal creates a new in-memory journal.
func NewJournal() *Journal {
	return &Journal{
		data: make(map[string][]ports.Entry),
	}
}

// Append records the entry at the end of its session's trail.
func (j *Journal) Append(ctx context.Context, entry ports.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data[entry.SessionID] = append(j.data[entry.SessionID], entry)
	return nil
}

// List returns a copy of the session's trail so callers can't mutate it.
func (j *Journal) List(ctx context.Context, sessionID string) ([]ports.Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]ports.Entry{}, j.data[sessionID]...), nil
}

// Sessions returns the ids with at least one entry, sorted.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	ids := make([]string, 0, len(j.data))
	for id := range j.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the session's trail.
func (j *Journal) Delete(ctx context.Context, sessionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.data, sessionID)
	return nil
}
