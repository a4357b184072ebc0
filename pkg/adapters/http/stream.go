package http

import (
	"log/slog"
	"sync"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// StreamManager fans snapshot diffs out to the SSE subscribers of each session.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *domain.SnapshotDiff]struct{}
	last        map[string]*domain.Snapshot
	gates       map[string]*sync.Mutex
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan *domain.SnapshotDiff]struct{}),
		last:        make(map[string]*domain.Snapshot),
		gates:       make(map[string]*sync.Mutex),
	}
}

// Subscribe registers a listener for the session. The returned func unsubscribes
// and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan *domain.SnapshotDiff, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan *domain.SnapshotDiff, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan *domain.SnapshotDiff]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
		})
	}
}

// PublishFrom takes a snapshot of the session and publishes it. Calls for the
// same session are serialized, so snapshots go out in the order they were taken.
func (sm *StreamManager) PublishFrom(sessionID string, take func() *domain.Snapshot) {
	gate := sm.gate(sessionID)
	gate.Lock()
	defer gate.Unlock()
	sm.Publish(take())
}

func (sm *StreamManager) gate(sessionID string) *sync.Mutex {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	g, ok := sm.gates[sessionID]
	if !ok {
		g = &sync.Mutex{}
		sm.gates[sessionID] = g
	}
	return g
}

// Publish diffs snap against the last published snapshot of the session and
// broadcasts the change, if any. A snapshot from an earlier epoch than the
// stored one is dropped.
func (sm *StreamManager) Publish(snap *domain.Snapshot) {
	sm.mu.Lock()
	prev := sm.last[snap.SessionID]
	if prev != nil && snap.Epoch < prev.Epoch {
		sm.mu.Unlock()
		return
	}
	sm.last[snap.SessionID] = snap
	sm.mu.Unlock()

	if diff := domain.Diff(prev, snap); diff != nil {
		sm.Broadcast(snap.SessionID, diff)
	}
}

// Broadcast sends diff to every subscriber of the session. Slow clients drop messages.
func (sm *StreamManager) Broadcast(sessionID string, diff *domain.SnapshotDiff) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- diff:
		default:
			slog.Warn("SSE: client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// Forget drops the cached snapshot of a released session.
func (sm *StreamManager) Forget(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.last, sessionID)
	delete(sm.gates, sessionID)
}
