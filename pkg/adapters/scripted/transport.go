// Package scripted provides a ports.Transport that replays a YAML scenario.
// It backs the demo CLI and lets tests hold responses to force interleavings.
package scripted

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aretw0/chequeflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "150ms" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// ErrorSpec is a server-classified failure.
type ErrorSpec struct {
	Kind    domain.ErrorKind `yaml:"kind"`
	Code    string           `yaml:"code"`
	Message string           `yaml:"message"`
}

// Step is one scripted response.
type Step struct {
	Result map[string]any `yaml:"result"`
	Error  *ErrorSpec     `yaml:"error"`
	Delay  Duration       `yaml:"delay"`
}

// Scenario is the file format read by Load.
type Scenario struct {
	Name      string                      `yaml:"name"`
	Latency   Duration                    `yaml:"latency"`
	Responses map[domain.Operation][]Step `yaml:"responses"`
}

// Call records a request received by the transport.
type Call struct {
	Operation domain.Operation
	Payload   map[string]any
}

// Transport replays queued steps per operation. The last step of a queue
// repeats once the others are consumed. Safe for concurrent use.
type Transport struct {
	mu      sync.Mutex
	name    string
	latency time.Duration
	queues  map[domain.Operation][]Step
	holds   map[domain.Operation]chan struct{}
	calls   []Call
}

// New creates an empty transport.
func New() *Transport {
	return &Transport{
		queues: make(map[domain.Operation][]Step),
		holds:  make(map[domain.Operation]chan struct{}),
	}
}

// Load reads a scenario file.
func Load(path string) (*Transport, error) {
	sc, err := ReadScenario(path)
	if err != nil {
		return nil, err
	}
	return FromScenario(sc), nil
}

// Parse builds a transport from scenario YAML.
func Parse(data []byte) (*Transport, error) {
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	return FromScenario(sc), nil
}

// ReadScenario reads and parses a scenario file.
func ReadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML and checks that every step names a
// catalog operation and carries exactly one of result or error.
func ParseScenario(data []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	for op, steps := range sc.Responses {
		if _, ok := domain.Describe(op); !ok {
			return Scenario{}, fmt.Errorf("scenario %q: %w: %q", sc.Name, domain.ErrUnknownOperation, op)
		}
		for i, s := range steps {
			if (s.Result == nil) == (s.Error == nil) {
				return Scenario{}, fmt.Errorf("scenario %q: %s step %d: exactly one of result or error is required", sc.Name, op, i+1)
			}
		}
	}
	return sc, nil
}

// FromScenario builds a transport replaying sc.
func FromScenario(sc Scenario) *Transport {
	t := New()
	t.name = sc.Name
	t.latency = time.Duration(sc.Latency)
	for op, steps := range sc.Responses {
		t.queues[op] = append([]Step(nil), steps...)
	}
	return t
}

// Name returns the scenario name.
func (t *Transport) Name() string { return t.name }

// Enqueue appends steps for op.
func (t *Transport) Enqueue(op domain.Operation, steps ...Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues[op] = append(t.queues[op], steps...)
}

// Hold parks every subsequent call of op until the returned release is called.
func (t *Transport) Hold(op domain.Operation) (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.holds[op] = gate
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if t.holds[op] == gate {
				delete(t.holds, op)
			}
			t.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the requests received so far.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Call implements ports.Transport.
func (t *Transport) Call(ctx context.Context, op domain.Operation, payload map[string]any) (map[string]any, error) {
	t.mu.Lock()
	t.calls = append(t.calls, Call{Operation: op, Payload: payload})
	gate := t.holds[op]
	step, ok := t.next(op)
	t.mu.Unlock()

	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "unscripted", fmt.Sprintf("no scripted response for %s", op))
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if d := t.latency + time.Duration(step.Delay); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if step.Error != nil {
		return nil, domain.NewError(step.Error.Kind, step.Error.Code, step.Error.Message)
	}
	return copyMap(step.Result), nil
}

// next must be called with mu held.
func (t *Transport) next(op domain.Operation) (Step, bool) {
	q := t.queues[op]
	if len(q) == 0 {
		return Step{}, false
	}
	step := q[0]
	if len(q) > 1 {
		t.queues[op] = q[1:]
	}
	return step, true
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = copyMap(vv)
		case []any:
			items := make([]any, len(vv))
			for i, item := range vv {
				if im, ok := item.(map[string]any); ok {
					items[i] = copyMap(im)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
