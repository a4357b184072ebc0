package domain

// Phase is the lifecycle phase of a workflow session.
type Phase string

const (
	PhaseActive      Phase = "active"       // Normal operation
	PhaseRollingBack Phase = "rolling_back" // Waiting for server acknowledgement of a rollback
	PhaseCompleted   Phase = "completed"    // Torn down after success
	PhaseAbandoned   Phase = "abandoned"    // Torn down by the user
	PhaseHalted      Phase = "halted"       // Stopped by a no-route contract violation
)

// Closed reports whether the session accepts no more operations.
func (p Phase) Closed() bool {
	return p == PhaseCompleted || p == PhaseAbandoned || p == PhaseHalted
}

// Snapshot is a point-in-time copy of a workflow session.
// It is safe to read and serialize without holding the session lock.
type Snapshot struct {
	SessionID        string   `json:"session_id"`
	RequestID        string   `json:"request_id,omitempty"`
	Phase            Phase    `json:"phase"`
	Stack            []Screen `json:"stack"`
	Epoch            uint64   `json:"epoch"`
	RollbackFailures int      `json:"rollback_failures"`
	// RollbackExhausted is set when the retry budget for a failed rollback is spent.
	RollbackExhausted bool                                 `json:"rollback_exhausted,omitempty"`
	Slices            map[Operation]*RequestSlice[Payload] `json:"slices"`
	Fault             string                               `json:"fault,omitempty"`
}

// Top returns the current screen of the snapshot.
func (s *Snapshot) Top() Screen {
	if len(s.Stack) == 0 {
		return ""
	}
	return s.Stack[len(s.Stack)-1]
}

// Slice returns the slice of op, or an idle slice when it was never dispatched.
func (s *Snapshot) Slice(op Operation) *RequestSlice[Payload] {
	if sl, ok := s.Slices[op]; ok && sl != nil {
		return sl
	}
	return &RequestSlice[Payload]{Status: SliceIdle}
}
