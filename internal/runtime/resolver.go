package runtime

import (
	"fmt"

	"github.com/aretw0/chequeflow/pkg/domain"
)

type stepKey struct {
	bank domain.BankType
	step domain.Step
}

// stepViews maps every declared inquiry outcome to its view.
var stepViews = map[stepKey]domain.ViewID{
	{domain.BankInternal, domain.StepConfirm}:     domain.ViewInquiryConfirm,
	{domain.BankExternal, domain.StepConfirm}:     domain.ViewInquiryConfirmExternal,
	{domain.BankInternal, domain.StepReject}:      domain.ViewInquiryReject,
	{domain.BankExternal, domain.StepReject}:      domain.ViewInquiryReject,
	{domain.BankInternal, domain.StepRejectImage}: domain.ViewInquiryRejectImage,
	{domain.BankInternal, domain.StepIssue}:       domain.ViewInquiryIssueDetail,
	{domain.BankExternal, domain.StepIssue}:       domain.ViewInquiryIssueDetail,
	{domain.BankInternal, domain.StepPending}:     domain.ViewInquiryPending,
	{domain.BankExternal, domain.StepPending}:     domain.ViewInquiryPending,
	{domain.BankInternal, domain.StepDelivery}:    domain.ViewInquiryDeliveryReady,
	{domain.BankExternal, domain.StepDelivery}:    domain.ViewInquiryDeliveryReady,
}

var statusViews = map[domain.ComparisonStatus]domain.ViewID{
	domain.ComparisonMatched:    domain.ViewSheetsMatched,
	domain.ComparisonMismatched: domain.ViewSheetsMismatched,
	domain.ComparisonPending:    domain.ViewSheetsPending,
}

// screenOps lists the operations whose slices a screen renders.
var screenOps = map[domain.Screen][]domain.Operation{
	domain.ScreenStart:    {domain.OpInitTransaction},
	domain.ScreenSheets:   {domain.OpCheckStatus, domain.OpAddInstrument},
	domain.ScreenInquiry:  {domain.OpStepInquiry},
	domain.ScreenDelivery: {domain.OpDeliveryInfo},
}

var emptyViews = map[domain.Screen]domain.ViewID{
	domain.ScreenSheets:   domain.ViewSheetsEmpty,
	domain.ScreenInquiry:  domain.ViewInquiryEmpty,
	domain.ScreenDelivery: domain.ViewDeliveryEmpty,
}

var titles = map[domain.Screen]string{
	domain.ScreenStart:    "Select instrument",
	domain.ScreenSheets:   "Instrument sheets",
	domain.ScreenInquiry:  "Instrument inquiry",
	domain.ScreenDelivery: "Delivery",
}

var (
	backAction    = domain.Action{Kind: domain.ActionBack, Label: "Back"}
	abandonAction = domain.Action{Kind: domain.ActionAbandon, Label: "Abandon"}
)

func dispatch(op domain.Operation, label string) domain.Action {
	return domain.Action{Kind: domain.ActionDispatch, Operation: op, Label: label}
}

// Resolve maps a snapshot to the view the user should see.
// It is pure: the same snapshot always yields the same descriptor.
// Data outside the declared domain yields a *domain.NoRouteError.
func Resolve(snap *domain.Snapshot) (domain.ViewDescriptor, error) {
	switch snap.Phase {
	case domain.PhaseHalted:
		return domain.ViewDescriptor{
			Screen:  snap.Top(),
			View:    domain.ViewHalted,
			Title:   "Workflow halted",
			Actions: []domain.Action{abandonAction},
			Error:   &domain.ErrorView{Kind: domain.KindProtocol, Code: "no_route", Message: snap.Fault},
		}, nil
	case domain.PhaseCompleted:
		return domain.ViewDescriptor{View: domain.ViewCompleted, Title: "Transaction completed"}, nil
	case domain.PhaseAbandoned:
		return domain.ViewDescriptor{View: domain.ViewAbandoned, Title: "Transaction abandoned"}, nil
	}

	top := snap.Top()
	if !top.Valid() {
		return domain.ViewDescriptor{}, &domain.NoRouteError{Screen: top, Detail: "unknown screen"}
	}

	view, err := screenView(snap, top)
	if err != nil {
		return domain.ViewDescriptor{}, err
	}

	rb := snap.Slice(domain.OpRollback)
	switch {
	case snap.Phase == domain.PhaseRollingBack:
		view.Busy = true
		view.Actions = []domain.Action{abandonAction}
	case rb.Status == domain.SliceFailed && rb.Origin == top:
		view.View = domain.ViewRollbackError
		view.Error = errorView(domain.OpRollback, rb.Error)
		view.Actions = nil
		if !snap.RollbackExhausted {
			view.Actions = append(view.Actions, domain.Action{Kind: domain.ActionRetry, Operation: domain.OpRollback, Label: "Retry back"})
		}
		view.Actions = append(view.Actions, abandonAction)
	}
	return view, nil
}

func screenView(snap *domain.Snapshot, top domain.Screen) (domain.ViewDescriptor, error) {
	view := domain.ViewDescriptor{Screen: top, Title: titles[top]}

	var failed *domain.RequestSlice[domain.Payload]
	var failedOp domain.Operation
	for _, op := range screenOps[top] {
		sl := snap.Slice(op)
		if sl.Loading() {
			view.Busy = true
		}
		if sl.Status == domain.SliceFailed && (failed == nil || sl.Seq > failed.Seq) {
			failed, failedOp = sl, op
		}
	}

	if err := dataView(snap, top, &view); err != nil {
		return domain.ViewDescriptor{}, err
	}

	if failed != nil && failed.Error != nil {
		if failed.Error.Kind == domain.KindNotFound && emptyViews[top] != "" {
			view.View = emptyViews[top]
			view.Data = nil
			view.Error = errorView(failedOp, failed.Error)
			view.Actions = []domain.Action{backAction}
			return view, nil
		}
		view.View = domain.ViewError
		view.Error = errorView(failedOp, failed.Error)
		if failed.Error.Retryable() {
			view.Actions = append([]domain.Action{{Kind: domain.ActionRetry, Operation: failedOp, Label: "Retry"}}, view.Actions...)
		}
	}

	if view.Busy {
		view.Actions = withoutDispatch(view.Actions)
	}
	return view, nil
}

func dataView(snap *domain.Snapshot, top domain.Screen, view *domain.ViewDescriptor) error {
	switch top {
	case domain.ScreenStart:
		view.View = domain.ViewStartSelect
		view.Actions = []domain.Action{dispatch(domain.OpInitTransaction, "Start transaction")}
		if snap.RequestID != "" {
			// A transaction rolled back to its first step can still be rolled back again.
			view.Actions = append(view.Actions, backAction)
		}
		view.Actions = append(view.Actions, abandonAction)

	case domain.ScreenSheets:
		sl := snap.Slice(domain.OpCheckStatus)
		if sl.Data == nil {
			view.View = domain.ViewSheetsEntry
			view.Actions = []domain.Action{dispatch(domain.OpCheckStatus, "Check status"), backAction, abandonAction}
			return nil
		}
		status, ok := (*sl.Data).(domain.StatusResult)
		id, known := statusViews[status.ComparisonStatus]
		if !ok || !known {
			return &domain.NoRouteError{Screen: top, Operation: domain.OpCheckStatus, Detail: fmt.Sprintf("no view for comparison status %q", status.ComparisonStatus)}
		}
		view.View = id
		view.Data = status
		switch status.ComparisonStatus {
		case domain.ComparisonMatched:
			view.Actions = []domain.Action{dispatch(domain.OpAddInstrument, "Add instrument"), dispatch(domain.OpCheckStatus, "Reselect")}
		case domain.ComparisonMismatched:
			view.Actions = []domain.Action{dispatch(domain.OpCheckStatus, "Reselect")}
		case domain.ComparisonPending:
			view.Actions = []domain.Action{dispatch(domain.OpCheckStatus, "Refresh")}
		}
		view.Actions = append(view.Actions, backAction, abandonAction)

	case domain.ScreenInquiry:
		sl := snap.Slice(domain.OpStepInquiry)
		if sl.Data == nil {
			view.View = domain.ViewInquiryEntry
			view.Actions = []domain.Action{dispatch(domain.OpStepInquiry, "Inquire"), backAction, abandonAction}
			return nil
		}
		step, ok := (*sl.Data).(domain.StepResult)
		id, known := stepViews[stepKey{step.BankType, step.Step}]
		if !ok || !known {
			return &domain.NoRouteError{Screen: top, Operation: domain.OpStepInquiry, Detail: fmt.Sprintf("no view for %s/%s", step.BankType, step.Step)}
		}
		view.View = id
		view.Data = step
		label := "Refresh"
		if step.Step == domain.StepDelivery {
			label = "Continue"
		}
		view.Actions = []domain.Action{dispatch(domain.OpStepInquiry, label), backAction, abandonAction}

	case domain.ScreenDelivery:
		sl := snap.Slice(domain.OpDeliveryInfo)
		if sl.Data == nil {
			view.View = domain.ViewDeliveryEntry
			view.Actions = []domain.Action{dispatch(domain.OpDeliveryInfo, "Load delivery"), backAction, abandonAction}
			return nil
		}
		view.View = domain.ViewDeliveryDetails
		view.Data = *sl.Data
		view.Actions = []domain.Action{
			{Kind: domain.ActionComplete, Label: "Complete"},
			dispatch(domain.OpDeliveryInfo, "Refresh"),
			backAction,
			abandonAction,
		}
	}
	return nil
}

func errorView(op domain.Operation, info *domain.ErrorInfo) *domain.ErrorView {
	if info == nil {
		return nil
	}
	return &domain.ErrorView{
		Operation: op,
		Kind:      info.Kind,
		Code:      info.Code,
		Message:   info.Message,
		Retryable: info.Retryable(),
	}
}

func withoutDispatch(actions []domain.Action) []domain.Action {
	out := actions[:0:0]
	for _, a := range actions {
		if a.Kind != domain.ActionDispatch && a.Kind != domain.ActionRetry && a.Kind != domain.ActionComplete {
			out = append(out, a)
		}
	}
	return out
}
