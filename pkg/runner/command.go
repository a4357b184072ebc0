package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// Runner-only actions that never appear in a view.
const (
	ActionQuit domain.ActionKind = "quit"
	ActionHelp domain.ActionKind = "help"
)

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrNotOffered   = errors.New("action not offered by the current view")
)

// Command is one parsed user instruction.
type Command struct {
	Action    domain.ActionKind `json:"action"`
	Operation domain.Operation  `json:"operation,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
}

const helpText = `Commands:
  <n>                      pick action n of the current view
  <operation> [k=v ...]    dispatch an operation (missing fields are asked)
  retry | back | complete | abandon
  help | quit
  {"action": "...", "operation": "...", "fields": {...}}   JSON form`

// ParseCommand interprets a line typed against view.
func ParseCommand(line string, view domain.ViewDescriptor) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyCommand
	}
	if strings.HasPrefix(line, "{") {
		return parseJSONCommand(line)
	}

	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(view.Actions) {
			return Command{}, fmt.Errorf("no action %d (1-%d)", n, len(view.Actions))
		}
		a := view.Actions[n-1]
		return Command{Action: a.Kind, Operation: a.Operation}, nil
	}

	tokens := strings.Fields(line)
	switch word := strings.ToLower(tokens[0]); word {
	case "quit", "q", "exit":
		return Command{Action: ActionQuit}, nil
	case "help", "?":
		return Command{Action: ActionHelp}, nil
	case "back":
		return Command{Action: domain.ActionBack}, nil
	case "complete":
		return Command{Action: domain.ActionComplete}, nil
	case "abandon":
		return Command{Action: domain.ActionAbandon}, nil
	case "retry":
		for _, a := range view.Actions {
			if a.Kind == domain.ActionRetry {
				return Command{Action: domain.ActionRetry, Operation: a.Operation}, nil
			}
		}
		return Command{}, fmt.Errorf("%w: retry", ErrNotOffered)
	}

	op, err := domain.ParseOperation(tokens[0])
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Action: domain.ActionDispatch, Operation: op}
	for _, tok := range tokens[1:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			return Command{}, fmt.Errorf("expected key=value, got %q", tok)
		}
		if cmd.Fields == nil {
			cmd.Fields = make(map[string]any)
		}
		cmd.Fields[k] = v
	}
	return cmd, nil
}

func parseJSONCommand(line string) (Command, error) {
	var cmd Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid JSON command: %w", err)
	}
	switch cmd.Action {
	case domain.ActionDispatch, domain.ActionRetry:
		if _, err := domain.ParseOperation(string(cmd.Operation)); err != nil {
			return Command{}, err
		}
	case domain.ActionBack, domain.ActionComplete, domain.ActionAbandon, ActionQuit, ActionHelp:
	default:
		return Command{}, fmt.Errorf("unknown action %q", cmd.Action)
	}
	return cmd, nil
}
