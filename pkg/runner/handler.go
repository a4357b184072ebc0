package runner

import (
	"context"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents the view of the top screen.
	Output(ctx context.Context, view domain.ViewDescriptor) error

	// Input reads the next command line.
	Input(ctx context.Context) (string, error)

	// Ask prompts for the value of one payload field.
	Ask(ctx context.Context, field string) (string, error)

	// SystemOutput presents a meta-message (rejections, outcomes) distinct
	// from the view content.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms markdown before output (e.g. markdown to ANSI).
type ContentRenderer func(string) (string, error)
