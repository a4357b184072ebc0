package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/aretw0/chequeflow/internal/logging"
	"github.com/aretw0/chequeflow/pkg/domain"
)

// Controller owns one workflow session: its screen stack, request id and
// request slices. Every mutation happens under mu; transport calls run in
// their own goroutines and re-enter the lock to apply their results.
type Controller struct {
	registry *Registry
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	policy   RollbackPolicy
	now      func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	id               string
	requestID        string
	phase            domain.Phase
	stack            *domain.ScreenStack
	slices           map[domain.Operation]*domain.RequestSlice[domain.Payload]
	seq              uint64
	epoch            uint64
	rollbackFailures int
	fault            string
}

// pendingCall is a dispatch whose transport call has not returned yet.
// Everything the result is judged against is captured at dispatch time.
type pendingCall struct {
	desc      domain.Descriptor
	seq       uint64
	origin    domain.Screen
	requestID string
	epoch     uint64
	payload   map[string]any
	ticket    *Ticket
	hookCtx   context.Context
}

// emit is a hook invocation deferred until the lock is released.
type emit func(context.Context)

// Start creates a session on the start screen and fires its first enter event.
func Start(ctx context.Context, registry *Registry, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		logger:   logging.NewNop(),
		now:      time.Now,
		phase:    domain.PhaseActive,
		stack:    domain.NewScreenStack(domain.ScreenStart),
		slices:   make(map[domain.Operation]*domain.RequestSlice[domain.Payload]),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.base, c.cancel = context.WithCancel(context.Background())
	c.logger = c.logger.With("session_id", c.id)

	c.fire(ctx, []emit{
		c.sessionEvent(domain.EventSessionStart, domain.PhaseActive),
		c.screenEvent(domain.EventScreenEnter, domain.ScreenStart),
	})
	c.logger.InfoContext(ctx, "session started")
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Dispatch issues op from the current screen. The transport call runs in the
// background; the returned ticket reports how its result was applied.
// Only precondition violations are returned as errors.
func (c *Controller) Dispatch(ctx context.Context, op domain.Operation, payload map[string]any) (*Ticket, error) {
	desc, err := c.registry.Describe(op)
	if err != nil {
		return nil, err
	}
	if desc.IsRollback() {
		return nil, fmt.Errorf("%w: %q is issued by back navigation", domain.ErrOperationNotAllowed, op)
	}

	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.phase == domain.PhaseRollingBack {
		c.mu.Unlock()
		return nil, domain.ErrRollbackInFlight
	}
	top := c.stack.Top()
	if !Allowed(top, op) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q on %q", domain.ErrOperationNotAllowed, op, top)
	}
	if desc.RequiresRequestID && c.requestID == "" {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", domain.ErrNoRequestID, op)
	}

	call := c.begin(ctx, desc, top, payload)
	events := []emit{c.operationEvent(domain.EventDispatch, call, "", nil, 0)}

	if info := c.registry.Validate(desc, payload); info != nil {
		sl := c.slice(op)
		sl.Reject(call.seq, info)
		events = append(events, c.operationEvent(domain.EventResult, call, domain.OutcomeFailed, info, 0))
		c.mu.Unlock()

		c.fire(call.hookCtx, events)
		call.ticket.resolve(Result{Operation: op, Seq: call.seq, Outcome: domain.OutcomeFailed, Screen: top, Error: info}, nil)
		return call.ticket, nil
	}

	c.wg.Add(1)
	c.mu.Unlock()

	c.fire(call.hookCtx, events)
	c.launch(ctx, call)
	return call.ticket, nil
}

// Back starts a rollback of the current step. The stack only moves once the
// server acknowledges it with a fresh request id.
func (c *Controller) Back(ctx context.Context) (*Ticket, error) {
	desc, err := c.registry.Describe(domain.OpRollback)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.phase == domain.PhaseRollingBack {
		c.mu.Unlock()
		return nil, domain.ErrRollbackInFlight
	}
	top := c.stack.Top()
	if c.requestID == "" {
		c.mu.Unlock()
		if top == domain.ScreenStart {
			return nil, domain.ErrAtStart
		}
		return nil, domain.ErrNoRequestID
	}
	if c.policy.Exhausted(c.rollbackFailures) {
		c.mu.Unlock()
		return nil, domain.ErrRollbackExhausted
	}
	if c.mutationInFlight() {
		c.mu.Unlock()
		return nil, domain.ErrOperationBusy
	}

	call := c.begin(ctx, desc, top, nil)
	c.phase = domain.PhaseRollingBack
	events := []emit{c.operationEvent(domain.EventDispatch, call, "", nil, 0)}
	c.wg.Add(1)
	c.mu.Unlock()

	c.fire(call.hookCtx, events)
	c.launch(ctx, call)
	return call.ticket, nil
}

// GoBack runs Back and waits for the rollback to be acknowledged or refused.
// A refused rollback is reported in Result.Error with kind rollback_failed.
func (c *Controller) GoBack(ctx context.Context) (Result, error) {
	t, err := c.Back(ctx)
	if err != nil {
		return Result{}, err
	}
	return t.Wait(ctx)
}

// begin reserves a sequence number and moves the slice to Loading.
// Must be called with mu held.
func (c *Controller) begin(ctx context.Context, desc domain.Descriptor, top domain.Screen, payload map[string]any) *pendingCall {
	c.seq++
	call := &pendingCall{
		desc:      desc,
		seq:       c.seq,
		origin:    top,
		requestID: c.requestID,
		epoch:     c.epoch,
		payload:   c.registry.Prepare(desc, payload, c.requestID),
		ticket:    newTicket(desc.Name, c.seq),
		hookCtx:   context.WithoutCancel(ctx),
	}
	c.slice(desc.Name).Dispatch(call.seq, top, call.requestID, call.epoch)
	return call
}

// launch runs the transport call detached from the caller's cancellation,
// but bound to the session so Abandon and Close cut it short.
func (c *Controller) launch(ctx context.Context, call *pendingCall) {
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.base, cancel)

	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()

		started := time.Now()
		payload, info := c.registry.Call(callCtx, call.desc, call.payload)
		elapsed := time.Since(started)

		if call.desc.IsRollback() {
			c.applyRollback(call, payload, info, elapsed)
			return
		}
		c.applyForward(call, payload, info, elapsed)
	}()
}

func (c *Controller) applyForward(call *pendingCall, payload domain.Payload, info *domain.ErrorInfo, elapsed time.Duration) {
	op := call.desc.Name

	c.mu.Lock()
	sl := c.slice(op)
	res := Result{Operation: op, Seq: call.seq}
	var (
		events []emit
		fatal  error
	)

	switch {
	case c.phase.Closed():
		res.Outcome = domain.OutcomeDiscarded
	case sl.Seq != call.seq || !sl.Loading():
		res.Outcome = domain.OutcomeDiscarded
	case call.epoch != c.epoch:
		sl.Clear()
		res.Outcome = domain.OutcomeDiscarded
	case info != nil:
		sl.Reject(call.seq, info)
		res.Outcome, res.Error = domain.OutcomeFailed, info
	case payload == nil || payload.Empty():
		nf := domain.NewError(domain.KindNotFound, "empty_result", fmt.Sprintf("%s returned no data", op))
		sl.Reject(call.seq, nf)
		res.Outcome, res.Error = domain.OutcomeFailed, nf
	default:
		a := c.advance(call, sl, payload)
		res.Outcome, res.Error, fatal, events = a.outcome, a.info, a.fatal, a.events
	}
	res.Screen = c.stack.Top()

	events = append([]emit{c.operationEvent(domain.EventResult, call, res.Outcome, res.Error, elapsed)}, events...)
	if fatal != nil {
		events = append(events, c.sessionEvent(domain.EventSessionEnd, domain.PhaseHalted))
	}
	c.mu.Unlock()

	c.logResult(call, res, elapsed)
	c.fire(call.hookCtx, events)
	call.ticket.resolve(res, fatal)
}

// applied is the effect of a successful payload on the session.
type applied struct {
	outcome domain.Outcome
	info    *domain.ErrorInfo
	fatal   error
	events  []emit
}

// advance stores a successful payload and applies the forward transition.
// Must be called with mu held.
// mutationInFlight reports whether a create or mutate call is still loading.
// Must be called with c.mu held.
func (c *Controller) mutationInFlight() bool {
	for op, sl := range c.slices {
		if !sl.Loading() {
			continue
		}
		if desc, err := c.registry.Describe(op); err == nil && desc.Mutates() {
			return true
		}
	}
	return false
}

func (c *Controller) advance(call *pendingCall, sl *domain.RequestSlice[domain.Payload], payload domain.Payload) applied {
	op := call.desc.Name

	if init, ok := payload.(domain.InitResult); ok {
		if c.requestID != "" && init.RequestID != c.requestID {
			info := domain.NewError(domain.KindValidation, "request_id_mismatch",
				fmt.Sprintf("server returned request id %q for transaction %q", init.RequestID, c.requestID))
			sl.Reject(call.seq, info)
			return applied{outcome: domain.OutcomeFailed, info: info}
		}
		c.requestID = init.RequestID
	}
	sl.Resolve(call.seq, payload)

	// Stale results are still checked against the screen they were dispatched from.
	route, err := Next(call.origin, op, payload)
	if err != nil {
		c.halt(err)
		return applied{outcome: domain.OutcomeHalted, fatal: err}
	}

	top := c.stack.Top()
	if call.origin != top || c.phase == domain.PhaseRollingBack {
		return applied{outcome: domain.OutcomeStale}
	}
	if route.Stay {
		return applied{outcome: domain.OutcomeStayed}
	}

	c.stack.Push(route.Next)
	return applied{outcome: domain.OutcomeAdvanced, events: []emit{
		c.screenEvent(domain.EventScreenLeave, top),
		c.screenEvent(domain.EventScreenEnter, route.Next),
	}}
}

func (c *Controller) applyRollback(call *pendingCall, payload domain.Payload, info *domain.ErrorInfo, elapsed time.Duration) {
	c.mu.Lock()
	sl := c.slice(domain.OpRollback)
	res := Result{Operation: domain.OpRollback, Seq: call.seq}
	var events []emit

	switch {
	case c.phase != domain.PhaseRollingBack || sl.Seq != call.seq || !sl.Loading():
		res.Outcome = domain.OutcomeDiscarded

	case info != nil || payload == nil || payload.Empty():
		if info == nil {
			info = domain.NewError(domain.KindProtocol, "empty_rollback", "rollback returned no request id")
		}
		failure := &domain.ErrorInfo{
			Kind:    domain.KindRollbackFailed,
			Code:    string(info.Kind),
			Message: "rollback not acknowledged: " + info.Message,
			Cause:   info,
		}
		sl.Reject(call.seq, failure)
		c.rollbackFailures++
		c.phase = domain.PhaseActive
		res.Outcome, res.Error = domain.OutcomeFailed, failure
		events = append(events, c.rollbackEvent(call, "", c.rollbackFailures, failure))

	default:
		ack, _ := payload.(domain.RollbackResult)
		sl.Resolve(call.seq, payload)
		attempt := c.rollbackFailures + 1
		c.requestID = ack.RequestID
		c.epoch++
		c.rollbackFailures = 0
		c.phase = domain.PhaseActive

		from := c.stack.Top()
		if _, ok := c.stack.Pop(); !ok {
			c.stack.Reset(domain.ScreenStart)
		}
		to := c.stack.Top()

		for op, s := range c.slices {
			if op == domain.OpRollback {
				continue
			}
			if s.Origin == from || s.Loading() {
				s.Clear()
			}
		}

		res.Outcome = domain.OutcomeRolledBack
		events = append(events,
			c.rollbackEvent(call, to, attempt, nil),
			c.screenEvent(domain.EventScreenLeave, from),
			c.screenEvent(domain.EventScreenEnter, to),
		)
	}
	res.Screen = c.stack.Top()
	events = append([]emit{c.operationEvent(domain.EventResult, call, res.Outcome, res.Error, elapsed)}, events...)
	c.mu.Unlock()

	c.logResult(call, res, elapsed)
	c.fire(call.hookCtx, events)
	call.ticket.resolve(res, nil)
}

// Complete tears the session down after the delivery details were shown.
func (c *Controller) Complete(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.phase == domain.PhaseRollingBack {
		c.mu.Unlock()
		return domain.ErrRollbackInFlight
	}
	if c.stack.Top() != domain.ScreenDelivery || c.slice(domain.OpDeliveryInfo).Status != domain.SliceSucceeded {
		c.mu.Unlock()
		return domain.ErrNotComplete
	}
	events := c.teardown(domain.PhaseCompleted)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "session completed")
	c.fire(context.WithoutCancel(ctx), events)
	return nil
}

// Abandon tears the session down from any screen. Pending results are discarded.
// A halted session may be abandoned to release it.
func (c *Controller) Abandon(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == domain.PhaseCompleted || c.phase == domain.PhaseAbandoned {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	events := c.teardown(domain.PhaseAbandoned)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "session abandoned")
	c.fire(context.WithoutCancel(ctx), events)
	return nil
}

// teardown must be called with mu held.
func (c *Controller) teardown(phase domain.Phase) []emit {
	top := c.stack.Top()
	c.phase = phase
	c.stack.Clear()
	c.cancel()

	var events []emit
	if top != "" {
		events = append(events, c.screenEvent(domain.EventScreenLeave, top))
	}
	return append(events, c.sessionEvent(domain.EventSessionEnd, phase))
}

// halt must be called with mu held.
func (c *Controller) halt(err error) {
	c.phase = domain.PhaseHalted
	c.fault = err.Error()
	c.cancel()
	c.logger.Error("workflow halted", "error", err)
}

// Close cancels pending calls and waits for their goroutines to finish.
// It does not change the session phase.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// Snapshot returns a deep copy of the session state.
func (c *Controller) Snapshot() *domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		SessionID:         c.id,
		RequestID:         c.requestID,
		Phase:             c.phase,
		Stack:             c.stack.Screens(),
		Epoch:             c.epoch,
		RollbackFailures:  c.rollbackFailures,
		RollbackExhausted: c.policy.Exhausted(c.rollbackFailures),
		Slices:            make(map[domain.Operation]*domain.RequestSlice[domain.Payload], len(c.slices)),
		Fault:             c.fault,
	}
	for op, sl := range c.slices {
		snap.Slices[op] = sl.Clone()
	}
	return snap
}

// View resolves the current view. A resolver no-route halts the session.
func (c *Controller) View(ctx context.Context) (domain.ViewDescriptor, error) {
	c.mu.Lock()
	view, err := Resolve(c.snapshot())
	var nr *domain.NoRouteError
	if err == nil || !errors.As(err, &nr) || c.phase.Closed() {
		c.mu.Unlock()
		return view, err
	}
	c.halt(err)
	events := []emit{c.sessionEvent(domain.EventSessionEnd, domain.PhaseHalted)}
	view, _ = Resolve(c.snapshot())
	c.mu.Unlock()

	c.fire(context.WithoutCancel(ctx), events)
	return view, err
}

// IsBusy reports whether op has a call in flight.
func (c *Controller) IsBusy(op domain.Operation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl, ok := c.slices[op]
	return ok && sl.Loading()
}

// LastError returns the error stored in op's slice, if any.
func (c *Controller) LastError(op domain.Operation) *domain.ErrorInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sl, ok := c.slices[op]; ok {
		return sl.Error.Clone()
	}
	return nil
}

// RequestID returns the current transaction id.
func (c *Controller) RequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID
}

// Phase returns the session phase.
func (c *Controller) Phase() domain.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Stack returns a copy of the screen stack.
func (c *Controller) Stack() []domain.Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stack.Screens()
}

func (c *Controller) checkOpen() error {
	switch c.phase {
	case domain.PhaseHalted:
		return domain.ErrHalted
	case domain.PhaseCompleted, domain.PhaseAbandoned:
		return domain.ErrSessionClosed
	}
	return nil
}

func (c *Controller) slice(op domain.Operation) *domain.RequestSlice[domain.Payload] {
	sl, ok := c.slices[op]
	if !ok {
		sl = &domain.RequestSlice[domain.Payload]{Status: domain.SliceIdle}
		c.slices[op] = sl
	}
	return sl
}

func (c *Controller) logResult(call *pendingCall, res Result, elapsed time.Duration) {
	attrs := []any{
		"operation", res.Operation,
		"seq", res.Seq,
		"outcome", res.Outcome,
		"screen", res.Screen,
		"duration", elapsed,
	}
	switch {
	case res.Error != nil:
		c.logger.Warn("operation failed", append(attrs, "kind", res.Error.Kind, "error", res.Error.Message)...)
	case res.Outcome == domain.OutcomeDiscarded || res.Outcome == domain.OutcomeStale:
		c.logger.Debug("result not applied", append(attrs, "origin", call.origin)...)
	default:
		c.logger.Debug("operation applied", attrs...)
	}
}

func (c *Controller) fire(ctx context.Context, events []emit) {
	for _, e := range events {
		e(ctx)
	}
}

func (c *Controller) eventBase(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: c.now(), Type: t, SessionID: c.id}
}

func (c *Controller) screenEvent(t domain.EventType, screen domain.Screen) emit {
	ev := &domain.ScreenEvent{EventBase: c.eventBase(t), Screen: screen}
	hook := c.hooks.OnScreenEnter
	if t == domain.EventScreenLeave {
		hook = c.hooks.OnScreenLeave
	}
	return func(ctx context.Context) {
		if hook != nil {
			hook(ctx, ev)
		}
	}
}

func (c *Controller) operationEvent(t domain.EventType, call *pendingCall, outcome domain.Outcome, info *domain.ErrorInfo, elapsed time.Duration) emit {
	ev := &domain.OperationEvent{
		EventBase: c.eventBase(t),
		Screen:    call.origin,
		Operation: call.desc.Name,
		Seq:       call.seq,
		RequestID: call.requestID,
		Payload:   maps.Clone(call.payload),
		Outcome:   outcome,
		Error:     info.Clone(),
		Duration:  elapsed,
	}
	hook := c.hooks.OnDispatch
	if t == domain.EventResult {
		hook = c.hooks.OnResult
	}
	return func(ctx context.Context) {
		if hook != nil {
			hook(ctx, ev)
		}
	}
}

func (c *Controller) rollbackEvent(call *pendingCall, to domain.Screen, attempt int, info *domain.ErrorInfo) emit {
	ev := &domain.RollbackEvent{
		EventBase:    c.eventBase(domain.EventRollback),
		From:         call.origin,
		To:           to,
		OldRequestID: call.requestID,
		Committed:    info == nil,
		Attempt:      attempt,
		Error:        info.Clone(),
	}
	if info == nil {
		ev.NewRequestID = c.requestID
	}
	hook := c.hooks.OnRollback
	return func(ctx context.Context) {
		if hook != nil {
			hook(ctx, ev)
		}
	}
}

func (c *Controller) sessionEvent(t domain.EventType, phase domain.Phase) emit {
	ev := &domain.SessionEvent{EventBase: c.eventBase(t), Phase: phase, RequestID: c.requestID}
	hook := c.hooks.OnSessionEnd
	if t == domain.EventSessionStart {
		hook = c.hooks.OnSessionStart
	}
	return func(ctx context.Context) {
		if hook != nil {
			hook(ctx, ev)
		}
	}
}
