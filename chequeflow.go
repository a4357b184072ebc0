package chequeflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/chequeflow/internal/runtime"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Result describes how a dispatched operation was applied.
	Result = runtime.Result
	// Ticket tracks one dispatch until its result is applied.
	Ticket = runtime.Ticket
	// RollbackPolicy bounds consecutive failed rollbacks (0 attempts = unlimited).
	RollbackPolicy = runtime.RollbackPolicy
	// Transition is one row of the forward transition table.
	Transition = runtime.Transition
)

// Engine is the high-level entry point for the library.
// It binds a transport to the operation catalog and starts workflow sessions.
type Engine struct {
	transport ports.Transport
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	policy    RollbackPolicy
	timeout   time.Duration
	tracer    trace.Tracer
	journal   ports.Journal
	clock     func() time.Time
	registry  *runtime.Registry
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks. Calling it more than
// once chains the hooks in registration order.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.Merge(e.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRollbackPolicy sets the rollback retry budget.
func WithRollbackPolicy(p RollbackPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithTransportTimeout bounds each transport call. Zero disables the bound.
func WithTransportTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithTracer overrides the global otel tracer used for transport spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithJournal records commits, rollbacks and session ends into j.
func WithJournal(j ports.Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithClock overrides the timestamp source of events and journal entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.clock = now
	}
}

// New initializes an Engine calling transport for every catalog operation.
func New(transport ports.Transport, opts ...Option) (*Engine, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	eng := &Engine{transport: transport, clock: time.Now}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized so components never log to nil.
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if eng.journal != nil {
		eng.hooks = domain.Merge(eng.hooks, JournalHooks(eng.journal, eng.logger, eng.clock))
	}

	regOpts := []runtime.RegistryOption{runtime.WithCallTimeout(eng.timeout)}
	if eng.tracer != nil {
		regOpts = append(regOpts, runtime.WithTracer(eng.tracer))
	}
	eng.registry = runtime.NewRegistry(eng.transport, regOpts...)
	return eng, nil
}

// Start opens a workflow session on the start screen.
// An empty sessionID is replaced by a random UUID.
func (e *Engine) Start(ctx context.Context, sessionID string) *Flow {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c := runtime.Start(ctx, e.registry,
		runtime.WithSessionID(sessionID),
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithRollbackPolicy(e.policy),
		runtime.WithClock(e.clock),
	)
	return &Flow{c: c}
}

// Transitions returns the forward transition table.
func Transitions() []Transition {
	return runtime.Transitions()
}

// AllowedOperations lists the operations dispatchable from screen.
func AllowedOperations(screen domain.Screen) []domain.Operation {
	return runtime.AllowedOperations(screen)
}

// Resolve maps a snapshot to its view without touching any session.
func Resolve(snap *domain.Snapshot) (domain.ViewDescriptor, error) {
	return runtime.Resolve(snap)
}

// Flow is one running workflow session. It is safe for concurrent use.
type Flow struct {
	c *runtime.Controller
}

// ID returns the session id.
func (f *Flow) ID() string { return f.c.ID() }

// CurrentView resolves what the user should see now.
// A *domain.NoRouteError means the session has halted.
func (f *Flow) CurrentView(ctx context.Context) (domain.ViewDescriptor, error) {
	return f.c.View(ctx)
}

// Dispatch issues op from the current screen without waiting for its result.
func (f *Flow) Dispatch(ctx context.Context, op domain.Operation, payload map[string]any) (*Ticket, error) {
	return f.c.Dispatch(ctx, op, payload)
}

// Do dispatches op and waits until its result has been applied.
func (f *Flow) Do(ctx context.Context, op domain.Operation, payload map[string]any) (Result, error) {
	t, err := f.c.Dispatch(ctx, op, payload)
	if err != nil {
		return Result{}, err
	}
	return t.Wait(ctx)
}

// Back starts a rollback without waiting for the server.
func (f *Flow) Back(ctx context.Context) (*Ticket, error) {
	return f.c.Back(ctx)
}

// GoBack rolls the current step back and waits for the server's answer.
// The stack only moves when the server acknowledges with a fresh request id.
func (f *Flow) GoBack(ctx context.Context) (Result, error) {
	return f.c.GoBack(ctx)
}

// IsBusy reports whether op has a call in flight.
func (f *Flow) IsBusy(op domain.Operation) bool { return f.c.IsBusy(op) }

// LastError returns the error stored for op, if any.
func (f *Flow) LastError(op domain.Operation) *domain.ErrorInfo { return f.c.LastError(op) }

// Complete ends the session once delivery details have been loaded.
func (f *Flow) Complete(ctx context.Context) error { return f.c.Complete(ctx) }

// Abandon ends the session from any screen.
func (f *Flow) Abandon(ctx context.Context) error { return f.c.Abandon(ctx) }

// Snapshot returns a deep copy of the session state.
func (f *Flow) Snapshot() *domain.Snapshot { return f.c.Snapshot() }

// Stack returns a copy of the screen stack.
func (f *Flow) Stack() []domain.Screen { return f.c.Stack() }

// RequestID returns the current transaction id.
func (f *Flow) RequestID() string { return f.c.RequestID() }

// Phase returns the session phase.
func (f *Flow) Phase() domain.Phase { return f.c.Phase() }

// Close cancels pending calls and waits for them to return.
func (f *Flow) Close() { f.c.Close() }
