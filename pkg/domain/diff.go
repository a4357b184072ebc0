package domain

import "slices"

// SnapshotDiff represents the changes between two snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type SnapshotDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Top       *Screen `json:"top,omitempty"`
	Phase     *Phase  `json:"phase,omitempty"`
	RequestID *string `json:"request_id,omitempty"`

	// Stack is the full history whenever it changed. Back navigation rewrites
	// history, so an append-only delta is not enough here.
	Stack []Screen `json:"stack,omitempty"`

	// Slices contains the new status of every slice whose status or sequence changed.
	// Cleared slices are reported as idle.
	Slices map[Operation]SliceStatus `json:"slices,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff representing the entire newSnap (initial load).
func Diff(oldSnap, newSnap *Snapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{SessionID: newSnap.SessionID}

	if oldSnap == nil || oldSnap.Top() != newSnap.Top() {
		top := newSnap.Top()
		diff.Top = &top
	}
	if oldSnap == nil || oldSnap.Phase != newSnap.Phase {
		diff.Phase = &newSnap.Phase
	}
	if oldSnap == nil || oldSnap.RequestID != newSnap.RequestID {
		if newSnap.RequestID != "" || oldSnap != nil {
			diff.RequestID = &newSnap.RequestID
		}
	}
	if oldSnap == nil || !slices.Equal(oldSnap.Stack, newSnap.Stack) {
		diff.Stack = newSnap.Stack
	}
	diff.Slices = diffSlices(oldSnap, newSnap)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffSlices(oldSnap, newSnap *Snapshot) map[Operation]SliceStatus {
	delta := make(map[Operation]SliceStatus)

	for op, sl := range newSnap.Slices {
		if sl == nil {
			continue
		}
		if oldSnap == nil {
			delta[op] = sl.Status
			continue
		}
		prev, ok := oldSnap.Slices[op]
		if !ok || prev == nil || prev.Status != sl.Status || prev.Seq != sl.Seq {
			delta[op] = sl.Status
		}
	}

	if oldSnap != nil {
		for op := range oldSnap.Slices {
			if _, ok := newSnap.Slices[op]; !ok {
				delta[op] = SliceIdle
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Top == nil &&
		d.Phase == nil &&
		d.RequestID == nil &&
		d.Stack == nil &&
		len(d.Slices) == 0
}
