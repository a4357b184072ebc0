package runtime

import (
	"context"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// Result describes how a dispatched operation was applied.
type Result struct {
	Operation domain.Operation  `json:"operation"`
	Seq       uint64            `json:"seq"`
	Outcome   domain.Outcome    `json:"outcome"`
	Screen    domain.Screen     `json:"screen"`
	Error     *domain.ErrorInfo `json:"error,omitempty"`
}

// Ticket tracks one dispatch until its result has been applied.
type Ticket struct {
	op   domain.Operation
	seq  uint64
	done chan struct{}
	res  Result
	err  error
}

func newTicket(op domain.Operation, seq uint64) *Ticket {
	return &Ticket{op: op, seq: seq, done: make(chan struct{})}
}

// Operation returns the dispatched operation.
func (t *Ticket) Operation() domain.Operation { return t.op }

// Seq returns the dispatch sequence number.
func (t *Ticket) Seq() uint64 { return t.seq }

// Done is closed once the result has been applied or discarded.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the result is applied or ctx ends.
// The error is non-nil only for a fatal no-route or when ctx ends first;
// operation failures are reported in Result.Error.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return Result{Operation: t.op, Seq: t.seq}, ctx.Err()
	}
}

func (t *Ticket) resolve(res Result, err error) {
	t.res = res
	t.err = err
	close(t.done)
}
