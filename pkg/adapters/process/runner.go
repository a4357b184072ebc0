// Package process provides a ports.Transport that runs one local command per
// operation. Commands are allow-listed; nothing from the payload reaches the
// command line.
//
// The payload is written to stdin as JSON and exported as CHEQUEFLOW_ARG_<KEY>
// variables. The command answers with a JSON object on stdout. An object with
// an "error" member ({"kind", "code", "message"}) is a server-classified
// failure; a non-zero exit without one is a network failure.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// EnvPrefix prefixes the payload variables exported to commands.
const EnvPrefix = "CHEQUEFLOW_ARG_"

// Transport executes registered commands. Safe for concurrent use once
// configured.
type Transport struct {
	registry map[domain.Operation]RegisteredProcess
	baseDir  string
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Option configures the transport.
type Option func(*Transport)

// WithCommands populates the allow-list from a loaded config.
func WithCommands(commands map[domain.Operation]CommandConfig) Option {
	return func(t *Transport) {
		for op, c := range commands {
			t.registry[op] = RegisteredProcess{Command: c.Command, Args: c.Args, Env: c.Environment}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(t *Transport) {
		t.baseDir = dir
	}
}

// NewTransport creates a process transport.
func NewTransport(opts ...Option) *Transport {
	t := &Transport{registry: make(map[domain.Operation]RegisteredProcess)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds a trusted command to the allow-list.
func (t *Transport) Register(op domain.Operation, command string, args ...string) {
	t.registry[op] = RegisteredProcess{Command: command, Args: args}
}

// Name describes the transport for logs and banners.
func (t *Transport) Name() string {
	return fmt.Sprintf("process (%d commands)", len(t.registry))
}

type errorEnvelope struct {
	Error *struct {
		Kind    domain.ErrorKind `json:"kind"`
		Code    string           `json:"code"`
		Message string           `json:"message"`
	} `json:"error"`
}

// Call implements ports.Transport.
func (t *Transport) Call(ctx context.Context, op domain.Operation, payload map[string]any) (map[string]any, error) {
	proc, ok := t.registry[op]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "unregistered", fmt.Sprintf("no command registered for %s", op))
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "payload", err.Error())
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = t.baseDir
	cmd.Env = append(cmd.Environ(), "CHEQUEFLOW_OPERATION="+string(op))
	for k, v := range proc.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, argEnv(payload)...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	output := bytes.TrimSpace(stdout.Bytes())
	if len(output) > 0 {
		var env errorEnvelope
		if json.Unmarshal(output, &env) == nil && env.Error != nil {
			if !env.Error.Kind.Known() {
				return nil, domain.NewError(domain.KindProtocol, "unknown_error_kind",
					fmt.Sprintf("%s: command reported error kind %q", op, env.Error.Kind))
			}
			return nil, domain.NewError(env.Error.Kind, env.Error.Code, env.Error.Message)
		}
	}

	if runErr != nil {
		return nil, fmt.Errorf("execution failed: %w. Stderr: %s", runErr, strings.TrimSpace(stderr.String()))
	}
	if len(output) == 0 {
		return nil, domain.NewError(domain.KindNotFound, "empty_output", fmt.Sprintf("%s: command printed nothing", op))
	}

	var result map[string]any
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, domain.NewError(domain.KindProtocol, "bad_output", fmt.Sprintf("%s: stdout is not a JSON object: %v", op, err))
	}
	return result, nil
}

// argEnv serializes primitives with fmt and everything else as JSON.
func argEnv(payload map[string]any) []string {
	env := make([]string, 0, len(payload))
	for k, v := range payload {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if b, err := json.Marshal(v); err == nil {
				val = string(b)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+val)
	}
	return env
}

// IsExitError reports whether err came from a command that ran and failed.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
