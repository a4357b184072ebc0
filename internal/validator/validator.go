// Package validator checks the transition table and scripted scenarios for
// consistency before they are run.
package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/chequeflow/internal/codec"
	"github.com/aretw0/chequeflow/internal/runtime"
	"github.com/aretw0/chequeflow/pkg/adapters/scripted"
	"github.com/aretw0/chequeflow/pkg/domain"
)

// ValidateTable crawls rows from the start screen and reports unknown screens,
// unknown or rollback operations, screens that cannot be reached, and forward
// operations no row uses.
func ValidateTable(rows []runtime.Transition) error {
	var errs []string

	edges := make(map[domain.Screen][]domain.Screen)
	used := make(map[domain.Operation]bool)
	for _, t := range rows {
		if !t.From.Valid() || !t.To.Valid() {
			errs = append(errs, fmt.Sprintf("row %s -%s-> %s: unknown screen", t.From, t.Operation, t.To))
			continue
		}
		desc, ok := domain.Describe(t.Operation)
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("row %s -%s-> %s: unknown operation", t.From, t.Operation, t.To))
			continue
		case desc.IsRollback():
			errs = append(errs, fmt.Sprintf("row %s -%s-> %s: rollback is not a forward operation", t.From, t.Operation, t.To))
			continue
		}
		used[t.Operation] = true
		edges[t.From] = append(edges[t.From], t.To)
	}

	visited := map[domain.Screen]bool{domain.ScreenStart: true}
	queue := []domain.Screen{domain.ScreenStart}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range edges[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, s := range domain.Screens() {
		if !visited[s] {
			errs = append(errs, fmt.Sprintf("screen %q is unreachable from %q", s, domain.ScreenStart))
		}
	}
	for _, op := range domain.Operations() {
		if d, _ := domain.Describe(op); !d.IsRollback() && !used[op] {
			errs = append(errs, fmt.Sprintf("operation %q is never offered", op))
		}
	}
	return joinErrors(errs)
}

// ValidateScenario checks every scripted step: results must decode into the
// payload of their operation and, for forward operations, route through the
// transition table; errors must carry a known kind. Empty results are accepted
// since they are a legitimate not-found answer.
func ValidateScenario(sc scripted.Scenario) error {
	var errs []string
	dec := codec.NewDecoder()

	for _, op := range domain.Operations() {
		steps, ok := sc.Responses[op]
		if !ok {
			continue
		}
		desc, _ := domain.Describe(op)
		for i, step := range steps {
			where := fmt.Sprintf("%s step %d", op, i+1)
			if step.Error != nil {
				if !step.Error.Kind.Known() {
					errs = append(errs, fmt.Sprintf("%s: unknown error kind %q", where, step.Error.Kind))
				}
				continue
			}

			payload, err := dec.Decode(op, step.Result)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", where, err))
				continue
			}
			if desc.IsRollback() || payload.Empty() {
				continue
			}
			if _, err := runtime.Next(origin(op), op, payload); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", where, err))
			}
		}
	}
	return joinErrors(errs)
}

// origin returns the screen op is offered on.
func origin(op domain.Operation) domain.Screen {
	for _, t := range runtime.Transitions() {
		if t.Operation == op {
			return t.From
		}
	}
	return ""
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(errs), strings.Join(errs, "\n- "))
}
