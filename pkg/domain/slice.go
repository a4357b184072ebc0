package domain

// SliceStatus is the lifecycle state of a RequestSlice.
type SliceStatus string

const (
	SliceIdle      SliceStatus = "idle"
	SliceLoading   SliceStatus = "loading"
	SliceSucceeded SliceStatus = "succeeded"
	SliceFailed    SliceStatus = "failed"
)

// RequestSlice tracks the lifecycle of one remote operation.
//
// Each dispatch is tagged with a sequence number; Resolve and Reject only
// apply when they carry the sequence of the latest dispatch, so a slow
// response can never overwrite a newer one. Data survives a failure
// (stale-while-error) and is only dropped by Clear.
type RequestSlice[T any] struct {
	Status SliceStatus `json:"status"`
	Data   *T          `json:"data,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`

	// Seq is the sequence number of the latest dispatch.
	Seq uint64 `json:"seq"`
	// Origin is the screen that issued the latest dispatch.
	Origin Screen `json:"origin,omitempty"`
	// RequestID is the request id read at dispatch time.
	RequestID string `json:"request_id,omitempty"`
	// Epoch is the session rollback epoch at dispatch time.
	Epoch uint64 `json:"epoch"`
}

// Dispatch moves the slice to Loading for a new call.
func (s *RequestSlice[T]) Dispatch(seq uint64, origin Screen, requestID string, epoch uint64) {
	s.Status = SliceLoading
	s.Error = nil
	s.Seq = seq
	s.Origin = origin
	s.RequestID = requestID
	s.Epoch = epoch
}

// Resolve stores data if seq belongs to the latest dispatch.
func (s *RequestSlice[T]) Resolve(seq uint64, data T) bool {
	if !s.current(seq) {
		return false
	}
	s.Status = SliceSucceeded
	s.Data = &data
	s.Error = nil
	return true
}

// Reject stores err if seq belongs to the latest dispatch, keeping previous data.
func (s *RequestSlice[T]) Reject(seq uint64, err *ErrorInfo) bool {
	if !s.current(seq) {
		return false
	}
	s.Status = SliceFailed
	s.Error = err
	return true
}

// Clear forces the slice back to Idle from any state.
// Pending calls keep their sequence number and are discarded on arrival.
func (s *RequestSlice[T]) Clear() {
	s.Status = SliceIdle
	s.Data = nil
	s.Error = nil
	s.Origin = ""
	s.RequestID = ""
}

// Loading reports whether a call is in flight.
func (s *RequestSlice[T]) Loading() bool { return s.Status == SliceLoading }

// Clone returns a copy that does not share the data or error pointers.
func (s *RequestSlice[T]) Clone() *RequestSlice[T] {
	if s == nil {
		return nil
	}
	c := *s
	if s.Data != nil {
		d := *s.Data
		c.Data = &d
	}
	c.Error = s.Error.Clone()
	return &c
}

func (s *RequestSlice[T]) current(seq uint64) bool {
	return s.Status == SliceLoading && seq == s.Seq
}
