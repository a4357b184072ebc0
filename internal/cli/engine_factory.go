package cli

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/internal/config"
	"github.com/aretw0/chequeflow/internal/telemetry"
	"github.com/aretw0/chequeflow/pkg/adapters/memory"
	"github.com/aretw0/chequeflow/pkg/adapters/process"
	redisAdapter "github.com/aretw0/chequeflow/pkg/adapters/redis"
	"github.com/aretw0/chequeflow/pkg/adapters/scripted"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/observability"
	"github.com/aretw0/chequeflow/pkg/persistence/middleware"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/aretw0/chequeflow/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

//go:embed demo.yaml
var demoScenario []byte

// Stack is the wired set of components shared by the serve, mcp and run commands.
type Stack struct {
	Engine   *chequeflow.Engine
	Sessions *session.Manager
	Journal  ports.Journal
	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
	// Scenario names the transport: the scenario name or the process command count.
	Scenario string

	closers []func(context.Context) error
}

// NewStack builds the engine and its collaborators from cfg.
// The caller owns the stack and must Close it.
func NewStack(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	s := &Stack{}

	transport, err := loadTransport(cfg)
	if err != nil {
		return nil, err
	}
	s.Scenario = transport.Name()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("error initializing tracing: %w", err)
	}
	s.closers = append(s.closers, shutdownTracing)

	engineOpts := []chequeflow.Option{
		chequeflow.WithLogger(logger),
		chequeflow.WithRollbackPolicy(chequeflow.RollbackPolicy{MaxAttempts: cfg.Workflow.RollbackMaxAttempts}),
		chequeflow.WithTransportTimeout(cfg.Workflow.TransportTimeout),
		chequeflow.WithTracer(otel.Tracer("github.com/aretw0/chequeflow")),
		chequeflow.WithLifecycleHooks(createDebugHooks(logger)),
	}

	var sessionOpts []session.Option
	if cfg.Redis.Addr != "" {
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = s.Close(ctx)
			return nil, fmt.Errorf("error connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		journal := redisAdapter.NewFromClient(client,
			redisAdapter.WithPrefix(cfg.Redis.Prefix+":journal:"),
			redisAdapter.WithTTL(cfg.Redis.JournalTTL),
		)
		s.Journal = journal
		s.closers = append(s.closers, func(context.Context) error { return journal.Close() })
		sessionOpts = append(sessionOpts, session.WithLocker(redisAdapter.NewLocker(client, cfg.Redis.Prefix+":")))
		logger.Info("Using Redis journal", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	} else {
		s.Journal = memory.NewJournal()
	}
	if s.Journal, err = protectJournal(s.Journal, cfg.Journal); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	engineOpts = append(engineOpts, chequeflow.WithJournal(s.Journal))

	if cfg.Metrics.Enabled {
		s.Registry = prometheus.NewRegistry()
		metrics, err := observability.NewMetrics(s.Registry)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("error registering metrics: %w", err)
		}
		engineOpts = append(engineOpts, chequeflow.WithLifecycleHooks(metrics.Hooks()))
	}

	s.Engine, err = chequeflow.New(transport, engineOpts...)
	if err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}

	sessionOpts = append(sessionOpts, session.WithLogger(logger))
	s.Sessions = session.NewManager(s.Engine, sessionOpts...)
	return s, nil
}

// Close ends live sessions and releases the stack resources in reverse order.
func (s *Stack) Close(ctx context.Context) error {
	if s.Sessions != nil {
		s.Sessions.Shutdown(ctx)
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// protectJournal wraps j with PII masking and, when a key is configured,
// encryption. Masking runs first so sealed payloads never hold the raw values.
func protectJournal(j ports.Journal, cfg config.JournalConfig) (ports.Journal, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		enc := middleware.EncryptionConfig{}
		var err error
		if enc.ActiveKey, err = middleware.ParseKey(cfg.EncryptionKey); err != nil {
			return nil, fmt.Errorf("journal.encryption_key: %w", err)
		}
		for i, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("journal.fallback_keys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(j, mws...), nil
}

type namedTransport interface {
	ports.Transport
	Name() string
}

// loadTransport picks the process commands or the scenario file, falling
// back to the bundled demo.
func loadTransport(cfg config.Config) (namedTransport, error) {
	if cfg.Process.Commands != "" {
		commands, err := process.LoadCommands(cfg.Process.Commands)
		if err != nil {
			return nil, fmt.Errorf("error loading commands: %w", err)
		}
		return process.NewTransport(process.WithCommands(commands), process.WithBaseDir(cfg.Process.Dir)), nil
	}
	if cfg.Scenario.Path == "" {
		t, err := scripted.Parse(demoScenario)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	t, err := scripted.Load(cfg.Scenario.Path)
	if err != nil {
		return nil, fmt.Errorf("error loading scenario: %w", err)
	}
	return t, nil
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return domain.LifecycleHooks{}
	}
	return domain.LifecycleHooks{
		OnScreenEnter: func(ctx context.Context, e *domain.ScreenEvent) {
			logger.DebugContext(ctx, "Enter Screen", "session_id", e.SessionID, "screen", e.Screen)
		},
		OnScreenLeave: func(ctx context.Context, e *domain.ScreenEvent) {
			logger.DebugContext(ctx, "Leave Screen", "session_id", e.SessionID, "screen", e.Screen)
		},
		OnDispatch: func(ctx context.Context, e *domain.OperationEvent) {
			logger.DebugContext(ctx, "Dispatch", "session_id", e.SessionID, "operation", e.Operation, "seq", e.Seq)
		},
		OnResult: func(ctx context.Context, e *domain.OperationEvent) {
			if e.Error != nil {
				logger.DebugContext(ctx, "Result (Error)", "session_id", e.SessionID, "operation", e.Operation, "kind", e.Error.Kind, "err", e.Error.Message)
				return
			}
			logger.DebugContext(ctx, "Result", "session_id", e.SessionID, "operation", e.Operation, "outcome", e.Outcome)
		},
		OnRollback: func(ctx context.Context, e *domain.RollbackEvent) {
			logger.DebugContext(ctx, "Rollback", "session_id", e.SessionID, "from", e.From, "committed", e.Committed, "attempt", e.Attempt)
		},
	}
}
