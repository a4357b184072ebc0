package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/pkg/domain"
)

// Runner drives one flow from a terminal or a JSON pipe: it shows the view of
// the top screen, reads a command, applies it and repeats until the session is
// completed, abandoned, or the input ends.
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger
}

// NewRunner creates a new Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Run executes the interaction loop and returns the phase the flow ended in.
// Quitting or reaching the end of input leaves the flow open for the caller.
func (r *Runner) Run(ctx context.Context, flow *chequeflow.Flow) (domain.Phase, error) {
	signals := NewSignalManager(ctx)
	defer signals.Stop()

	payloads := make(map[domain.Operation]map[string]any)

	for {
		view, err := flow.CurrentView(ctx)
		if err != nil {
			var nr *domain.NoRouteError
			if !errors.As(err, &nr) {
				return flow.Phase(), err
			}
			// The flow is halted now; the next pass renders the halted view.
			r.system(ctx, fmt.Sprintf("halted: %v", err))
			continue
		}
		if err := r.Handler.Output(ctx, view); err != nil {
			return flow.Phase(), fmt.Errorf("output error: %w", err)
		}

		switch phase := flow.Phase(); phase {
		case domain.PhaseCompleted, domain.PhaseAbandoned:
			return phase, nil
		}

		line, err := r.Handler.Input(signals.Context())
		if err != nil {
			signals.CheckRace()
			switch {
			case ctx.Err() != nil:
				return flow.Phase(), ctx.Err()
			case signals.Interrupted(), errors.Is(err, io.EOF):
				r.Logger.Debug("input closed", "session_id", flow.ID(), "error", err)
				return flow.Phase(), nil
			}
			return flow.Phase(), fmt.Errorf("input error: %w", err)
		}

		line, err = SanitizeInput(line)
		if err != nil {
			r.system(ctx, err.Error())
			continue
		}
		cmd, err := ParseCommand(line, view)
		if errors.Is(err, ErrEmptyCommand) {
			continue
		}
		if err != nil {
			r.system(ctx, err.Error())
			continue
		}

		quit, err := r.execute(signals, flow, cmd, payloads)
		if err != nil {
			return flow.Phase(), err
		}
		if quit {
			return flow.Phase(), nil
		}
	}
}

// execute applies cmd. Rejections are reported to the user; only IO failures
// and cancellation of the parent context end the loop.
func (r *Runner) execute(signals *SignalManager, flow *chequeflow.Flow, cmd Command, payloads map[domain.Operation]map[string]any) (bool, error) {
	ctx := signals.Context()
	report := func(res chequeflow.Result, err error) error { return r.report(ctx, res, err) }
	var err error

	switch cmd.Action {
	case ActionQuit:
		return true, nil
	case ActionHelp:
		r.system(ctx, helpText)
		return false, nil
	case domain.ActionBack:
		err = report(flow.GoBack(ctx))
	case domain.ActionRetry:
		if cmd.Operation == domain.OpRollback {
			err = report(flow.GoBack(ctx))
			break
		}
		err = report(flow.Do(ctx, cmd.Operation, payloads[cmd.Operation]))
	case domain.ActionDispatch:
		payload, askErr := r.collect(ctx, cmd)
		if askErr != nil {
			err = askErr
			break
		}
		payloads[cmd.Operation] = payload
		err = report(flow.Do(ctx, cmd.Operation, payload))
	case domain.ActionComplete:
		err = flow.Complete(ctx)
	case domain.ActionAbandon:
		err = flow.Abandon(ctx)
	}

	switch {
	case err == nil:
		return false, nil
	case signals.Interrupted():
		// The call keeps running; its result is applied when it arrives.
		signals.Reset()
		r.system(ctx, "interrupted")
		return false, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false, err
	case errors.Is(err, io.EOF):
		return true, nil
	}
	r.system(ctx, err.Error())
	return false, nil
}

// collect fills in required fields the command did not carry.
func (r *Runner) collect(ctx context.Context, cmd Command) (map[string]any, error) {
	payload := make(map[string]any, len(cmd.Fields))
	for k, v := range cmd.Fields {
		payload[k] = v
	}
	desc, ok := domain.Describe(cmd.Operation)
	if !ok {
		return payload, nil
	}
	for _, field := range desc.RequiredFields {
		if v, ok := payload[field]; ok && v != "" {
			continue
		}
		v, err := r.Handler.Ask(ctx, field)
		if err != nil {
			return nil, err
		}
		if v, err = SanitizeInput(v); err != nil {
			return nil, err
		}
		payload[field] = v
	}
	return payload, nil
}

// report logs the result of a call and surfaces a no-route halt.
func (r *Runner) report(ctx context.Context, res chequeflow.Result, err error) error {
	if err != nil {
		var nr *domain.NoRouteError
		if errors.As(err, &nr) {
			r.system(ctx, fmt.Sprintf("halted: %v", err))
			return nil
		}
		return err
	}
	r.Logger.Debug("result applied", "operation", res.Operation, "seq", res.Seq, "outcome", res.Outcome)
	return nil
}

func (r *Runner) system(ctx context.Context, msg string) {
	if err := r.Handler.SystemOutput(ctx, msg); err != nil {
		r.Logger.Warn("system output failed", "error", err)
	}
}
