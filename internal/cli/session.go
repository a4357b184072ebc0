package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/chequeflow/internal/presentation/tui"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/runner"
)

// RunSession drives one session of the stack from the terminal or a JSON pipe.
// Interruptions and the end of input are not errors.
func RunSession(ctx context.Context, stack *Stack, opts RunOptions, logger *slog.Logger) error {
	opts.defaults()
	quiet := opts.JSON

	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(opts.In, opts.Out)
	} else {
		var textOpts []runner.TextHandlerOption
		if opts.Pretty {
			tui.PrintBanner(opts.Out)
			render, err := tui.NewRenderer(opts.Style)
			if err != nil {
				return fmt.Errorf("error initializing renderer: %w", err)
			}
			textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
		}
		handler = runner.NewTextHandler(opts.In, opts.Out, textOpts...)
	}

	sigCtx := NewSignalContext(ctx, false)
	defer sigCtx.Cancel()

	flow, err := stack.Sessions.Create(sigCtx, opts.SessionID)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	logger.Info("Session Created", "session_id", flow.ID(), "scenario", stack.Scenario)
	if !quiet {
		printSystemMessage(opts.Out, "Session '%s' active (scenario %s).", flow.ID(), stack.Scenario)
	}

	r := runner.NewRunner(runner.WithLogger(logger), runner.WithInputHandler(handler))
	phase, runErr := r.Run(sigCtx, flow)
	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}

	if !quiet {
		logCompletion(opts.Out, flow.ID(), phase, runErr, sigCtx.Signal())
	}
	if phase != domain.PhaseCompleted && phase != domain.PhaseAbandoned {
		logger.Info("Session left open", "session_id", flow.ID(), "phase", phase, "request_id", flow.RequestID())
	}
	return handleExecutionError(runErr)
}
