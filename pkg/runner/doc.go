/*
Package runner implements the interactive loop that drives a chequeflow session.

The runner renders the view of the top screen, reads a command, applies it to
the flow and repeats. IO is pluggable through IOHandler: TextHandler serves
terminals (optionally rendering markdown with glamour) and JSONHandler speaks
JSON Lines for scripted hosts.

# Commands

  - A number picks the matching action of the current view.
  - An operation name dispatches it; key=value pairs fill the payload and
    missing required fields are asked one by one.
  - retry, back, complete and abandon map to the view actions.
  - A JSON object {"action", "operation", "fields"} is accepted in both modes.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)
	phase, err := r.Run(ctx, flow)
*/
package runner
