package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/chequeflow/internal/config"
	"github.com/aretw0/chequeflow/internal/logging"
	"github.com/aretw0/chequeflow/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGTERM.
// SIGINT is left to the runner, which uses it to abandon a pending wait.
// Pass interrupt to cancel on SIGINT too, as signal.NotifyContext would.
func NewSignalContext(parent context.Context, interrupt bool) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sigs := []os.Signal{syscall.SIGTERM}
	if interrupt {
		sigs = append(sigs, os.Interrupt)
	}
	signal.Notify(sc.sigCh, sigs...)
	go func() {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Context.Done():
		}
		sc.stop.Do(func() {
			signal.Stop(sc.sigCh)
		})
	}()

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// NewLogger builds the process logger from the log section of cfg.
// It always writes to w, which should be Stderr outside tests.
func NewLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	switch logging.Format(cfg.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", cfg.Format)
	}
	return logging.NewWithWriter(w, logging.Format(cfg.Format), level), nil
}

// printSystemMessage prints a standardized system message to w.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}

func logCompletion(w io.Writer, sessionID string, phase domain.Phase, err error, sig os.Signal) {
	switch {
	case err == nil:
		printSystemMessage(w, "Session '%s' finished (%s).", sessionID, phase)
	case sig != nil:
		fmt.Fprintln(w)
		printSystemMessage(w, "Terminated in session '%s' (%s).", sessionID, phase)
	case isInterrupted(err):
		fmt.Fprintln(w)
		printSystemMessage(w, "Interrupted in session '%s' (%s).", sessionID, phase)
	}
}
