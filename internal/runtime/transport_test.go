package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/chequeflow/internal/runtime"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/stretchr/testify/require"
)

// gatedTransport parks every call until the test answers it.
type gatedTransport struct {
	calls chan *pendingReply
}

type pendingReply struct {
	op      domain.Operation
	payload map[string]any
	reply   chan reply
}

type reply struct {
	raw map[string]any
	err error
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{calls: make(chan *pendingReply, 16)}
}

func (g *gatedTransport) Call(ctx context.Context, op domain.Operation, payload map[string]any) (map[string]any, error) {
	p := &pendingReply{op: op, payload: payload, reply: make(chan reply, 1)}
	g.calls <- p
	select {
	case r := <-p.reply:
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// next returns the next parked call and asserts its operation.
func (g *gatedTransport) next(t *testing.T, op domain.Operation) *pendingReply {
	t.Helper()
	select {
	case p := <-g.calls:
		require.Equal(t, op, p.op)
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s call", op)
		return nil
	}
}

// idle asserts that no call reached the transport.
func (g *gatedTransport) idle(t *testing.T) {
	t.Helper()
	select {
	case p := <-g.calls:
		t.Fatalf("unexpected %s call", p.op)
	default:
	}
}

func (p *pendingReply) ok(raw map[string]any) { p.reply <- reply{raw: raw} }
func (p *pendingReply) fail(err error)        { p.reply <- reply{err: err} }

type harness struct {
	t  *testing.T
	gt *gatedTransport
	c  *runtime.Controller
}

func newHarness(t *testing.T, opts ...runtime.Option) *harness {
	t.Helper()
	gt := newGatedTransport()
	c := runtime.Start(context.Background(), runtime.NewRegistry(gt), opts...)
	t.Cleanup(c.Close)
	return &harness{t: t, gt: gt, c: c}
}

// do dispatches op, answers it with raw and waits for the result to apply.
func (h *harness) do(op domain.Operation, payload map[string]any, raw map[string]any) runtime.Result {
	h.t.Helper()
	ticket, err := h.c.Dispatch(context.Background(), op, payload)
	require.NoError(h.t, err)
	h.gt.next(h.t, op).ok(raw)
	res, err := ticket.Wait(waitCtx(h.t))
	require.NoError(h.t, err)
	return res
}

func (h *harness) back(raw map[string]any, err error) runtime.Result {
	h.t.Helper()
	ticket, berr := h.c.Back(context.Background())
	require.NoError(h.t, berr)
	p := h.gt.next(h.t, domain.OpRollback)
	if err != nil {
		p.fail(err)
	} else {
		p.ok(raw)
	}
	res, werr := ticket.Wait(waitCtx(h.t))
	require.NoError(h.t, werr)
	return res
}

func (h *harness) view() domain.ViewDescriptor {
	h.t.Helper()
	v, err := h.c.View(context.Background())
	require.NoError(h.t, err)
	return v
}

// toSheets initialises a transaction with R1.
func (h *harness) toSheets() {
	h.t.Helper()
	h.do(domain.OpInitTransaction, nil, map[string]any{"request_id": "R1"})
}

func (h *harness) toInquiry() {
	h.t.Helper()
	h.toSheets()
	h.do(domain.OpAddInstrument, nil, map[string]any{"instrument_id": "I-1", "amount": 1500})
}

func (h *harness) toDelivery() {
	h.t.Helper()
	h.toInquiry()
	h.do(domain.OpStepInquiry, nil, map[string]any{"bank_type": "INTERNAL", "step": "DELIVERY"})
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var instrument = map[string]any{
	domain.FieldBankCode:      "001",
	domain.FieldAccountNumber: "123456",
	domain.FieldSerialNumber:  "000042",
}
