package runtime

import (
	"fmt"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// Route is the outcome of a forward transition.
type Route struct {
	Next domain.Screen
	Stay bool
}

// Transition is one row of the forward transition table.
type Transition struct {
	From      domain.Screen    `json:"from"`
	Operation domain.Operation `json:"operation"`
	// Condition is a readable label of the payload predicate ("" means any payload).
	Condition string `json:"condition,omitempty"`
	// To equals From for rows that keep the user on the same screen.
	To domain.Screen `json:"to"`

	match func(domain.Payload) bool
}

// Stays reports whether the row keeps the current screen.
func (t Transition) Stays() bool { return t.To == t.From }

// internalSteps and externalSteps declare the step domain per bank type.
// A REJECT_IMAGE step only exists for instruments drawn on the operating bank.
var (
	internalSteps = []domain.Step{domain.StepConfirm, domain.StepReject, domain.StepRejectImage, domain.StepIssue, domain.StepPending}
	externalSteps = []domain.Step{domain.StepConfirm, domain.StepReject, domain.StepIssue, domain.StepPending}
)

var table = buildTable()

func buildTable() []Transition {
	rows := []Transition{
		{From: domain.ScreenStart, Operation: domain.OpInitTransaction, To: domain.ScreenSheets, match: isType[domain.InitResult]},
		{From: domain.ScreenSheets, Operation: domain.OpAddInstrument, To: domain.ScreenInquiry, match: isType[domain.AddInstrumentResult]},
		{From: domain.ScreenDelivery, Operation: domain.OpDeliveryInfo, To: domain.ScreenDelivery, match: isType[domain.DeliveryResult]},
	}

	for _, status := range []domain.ComparisonStatus{domain.ComparisonMatched, domain.ComparisonMismatched, domain.ComparisonPending} {
		status := status
		rows = append(rows, Transition{
			From:      domain.ScreenSheets,
			Operation: domain.OpCheckStatus,
			Condition: "comparison_status=" + string(status),
			To:        domain.ScreenSheets,
			match: func(p domain.Payload) bool {
				r, ok := p.(domain.StatusResult)
				return ok && r.ComparisonStatus == status
			},
		})
	}

	steps := map[domain.BankType][]domain.Step{
		domain.BankInternal: internalSteps,
		domain.BankExternal: externalSteps,
	}
	for _, bank := range []domain.BankType{domain.BankInternal, domain.BankExternal} {
		for _, step := range append(steps[bank], domain.StepDelivery) {
			to := domain.ScreenInquiry
			if step == domain.StepDelivery {
				to = domain.ScreenDelivery
			}
			rows = append(rows, stepRow(bank, step, to))
		}
	}
	return rows
}

func stepRow(bank domain.BankType, step domain.Step, to domain.Screen) Transition {
	return Transition{
		From:      domain.ScreenInquiry,
		Operation: domain.OpStepInquiry,
		Condition: fmt.Sprintf("bank_type=%s,step=%s", bank, step),
		To:        to,
		match: func(p domain.Payload) bool {
			r, ok := p.(domain.StepResult)
			return ok && r.BankType == bank && r.Step == step
		},
	}
}

func isType[T domain.Payload](p domain.Payload) bool {
	_, ok := p.(T)
	return ok
}

// Transitions returns a copy of the forward transition table.
func Transitions() []Transition {
	return append([]Transition(nil), table...)
}

// Allowed reports whether op may be dispatched from screen.
func Allowed(screen domain.Screen, op domain.Operation) bool {
	for _, t := range table {
		if t.From == screen && t.Operation == op {
			return true
		}
	}
	return false
}

// AllowedOperations lists the operations dispatchable from screen, in catalog order.
func AllowedOperations(screen domain.Screen) []domain.Operation {
	var ops []domain.Operation
	for _, op := range domain.Operations() {
		if Allowed(screen, op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// Next resolves the forward transition for a succeeded operation.
// Exactly one row must match; anything else is a *domain.NoRouteError.
func Next(screen domain.Screen, op domain.Operation, payload domain.Payload) (Route, error) {
	var (
		found   bool
		matched []Transition
	)
	for _, t := range table {
		if t.From != screen || t.Operation != op {
			continue
		}
		found = true
		if t.match(payload) {
			matched = append(matched, t)
		}
	}

	switch {
	case !found:
		return Route{}, &domain.NoRouteError{Screen: screen, Operation: op, Detail: "no transition declared"}
	case len(matched) == 0:
		return Route{}, &domain.NoRouteError{Screen: screen, Operation: op, Detail: fmt.Sprintf("payload outside declared domain: %+v", payload)}
	case len(matched) > 1:
		return Route{}, &domain.NoRouteError{Screen: screen, Operation: op, Detail: fmt.Sprintf("%d transitions match", len(matched))}
	}

	t := matched[0]
	if t.Stays() {
		return Route{Next: screen, Stay: true}, nil
	}
	return Route{Next: t.To}, nil
}
