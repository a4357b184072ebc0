package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// RollbackPolicy bounds consecutive failed rollbacks.
type RollbackPolicy struct {
	// MaxAttempts is the number of failed rollbacks tolerated before only
	// abandonment remains. Zero means unlimited.
	MaxAttempts int
}

// Exhausted reports whether failures has spent the budget.
func (p RollbackPolicy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = domain.Merge(c.hooks, hooks)
	}
}

// WithRollbackPolicy sets the rollback retry budget.
func WithRollbackPolicy(p RollbackPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithSessionID sets the id stamped on every event.
func WithSessionID(id string) Option {
	return func(c *Controller) {
		c.id = id
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}
