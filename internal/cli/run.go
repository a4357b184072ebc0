package cli

import (
	"io"
	"os"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	SessionID string
	JSON      bool
	// Pretty renders views with glamour. Ignored in JSON mode.
	Pretty bool
	// Style is the glamour style; empty picks one from the terminal background.
	Style string

	In  io.Reader
	Out io.Writer
}

func (o *RunOptions) defaults() {
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
}
