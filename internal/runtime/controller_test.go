package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/chequeflow/internal/runtime"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_InitPushesSheets(t *testing.T) {
	h := newHarness(t)

	ticket, err := h.c.Dispatch(context.Background(), domain.OpInitTransaction, nil)
	require.NoError(t, err)
	assert.True(t, h.c.IsBusy(domain.OpInitTransaction))
	assert.True(t, h.view().Busy)

	call := h.gt.next(t, domain.OpInitTransaction)
	assert.NotContains(t, call.payload, domain.FieldRequestID)
	call.ok(map[string]any{"request_id": "R1"})

	res, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAdvanced, res.Outcome)
	assert.Equal(t, domain.ScreenSheets, res.Screen)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets}, h.c.Stack())
	assert.Equal(t, "R1", h.c.RequestID())
	assert.False(t, h.c.IsBusy(domain.OpInitTransaction))
}

func TestController_MismatchStaysOnSheets(t *testing.T) {
	h := newHarness(t)
	h.toSheets()

	res := h.do(domain.OpCheckStatus, instrument, map[string]any{"comparison_status": "MISMATCHED"})
	assert.Equal(t, domain.OutcomeStayed, res.Outcome)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets}, h.c.Stack())

	view := h.view()
	assert.Equal(t, domain.ViewSheetsMismatched, view.View)
	assert.True(t, view.Allows(domain.ActionBack))
	assert.Contains(t, view.Actions, domain.Action{Kind: domain.ActionDispatch, Operation: domain.OpCheckStatus, Label: "Reselect"})
	assert.NotContains(t, view.Actions, domain.Action{Kind: domain.ActionDispatch, Operation: domain.OpAddInstrument, Label: "Add instrument"})
}

func TestController_RequestIDStampedAtDispatch(t *testing.T) {
	h := newHarness(t)
	h.toSheets()

	_, err := h.c.Dispatch(context.Background(), domain.OpCheckStatus, map[string]any{
		domain.FieldBankCode:      "001",
		domain.FieldAccountNumber: "123456",
		domain.FieldSerialNumber:  "000042",
		domain.FieldRequestID:     "forged",
	})
	require.NoError(t, err)
	call := h.gt.next(t, domain.OpCheckStatus)
	assert.Equal(t, "R1", call.payload[domain.FieldRequestID])
	assert.Equal(t, "000042", call.payload[domain.FieldSerialNumber])
	call.ok(map[string]any{"comparison_status": "MATCHED"})
}

func TestController_RollbackFailureKeepsStack(t *testing.T) {
	h := newHarness(t)
	h.toSheets()

	res := h.back(nil, domain.NewError(domain.KindNetwork, "timeout", "gateway timeout"))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.KindRollbackFailed, res.Error.Kind)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets}, h.c.Stack())
	assert.Equal(t, "R1", h.c.RequestID())

	snap := h.c.Snapshot()
	assert.Equal(t, domain.SliceFailed, snap.Slice(domain.OpRollback).Status)
	assert.Equal(t, domain.PhaseActive, snap.Phase)
	assert.Equal(t, 1, snap.RollbackFailures)

	var cause *domain.ErrorInfo
	require.True(t, errors.As(res.Error.Unwrap(), &cause))
	assert.Equal(t, domain.KindNetwork, cause.Kind)

	view := h.view()
	assert.Equal(t, domain.ViewRollbackError, view.View)
	assert.True(t, view.Allows(domain.ActionRetry))
	assert.True(t, view.Allows(domain.ActionAbandon))
}

func TestController_RollbackCommitClearsAbandonedSlices(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	h.do(domain.OpCheckStatus, instrument, map[string]any{"comparison_status": "MATCHED"})

	ticket, err := h.c.Back(context.Background())
	require.NoError(t, err)
	call := h.gt.next(t, domain.OpRollback)
	assert.Equal(t, "R1", call.payload[domain.FieldRequestID])

	// Nothing moves until the server acknowledges.
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets}, h.c.Stack())
	assert.Equal(t, domain.PhaseRollingBack, h.c.Phase())
	assert.True(t, h.view().Busy)

	call.ok(map[string]any{"request_id": "R2"})
	res, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRolledBack, res.Outcome)
	assert.Equal(t, domain.ScreenStart, res.Screen)

	snap := h.c.Snapshot()
	assert.Equal(t, []domain.Screen{domain.ScreenStart}, snap.Stack)
	assert.Equal(t, "R2", snap.RequestID)
	assert.Equal(t, uint64(1), snap.Epoch)
	assert.Equal(t, domain.SliceIdle, snap.Slice(domain.OpCheckStatus).Status)
	assert.Nil(t, snap.Slice(domain.OpCheckStatus).Data)
	assert.Equal(t, domain.SliceSucceeded, snap.Slice(domain.OpInitTransaction).Status)
}

func TestController_StepInquiryViews(t *testing.T) {
	h := newHarness(t)
	h.toInquiry()

	h.do(domain.OpStepInquiry, nil, map[string]any{"bank_type": "INTERNAL", "step": "REJECT_IMAGE", "image_url": "https://img/1"})
	assert.Equal(t, domain.ViewInquiryRejectImage, h.view().View)

	h.do(domain.OpStepInquiry, nil, map[string]any{
		"bank_type":    "INTERNAL",
		"step":         "ISSUE",
		"issue_detail": map[string]any{"code": "E12", "description": "signature missing"},
	})
	view := h.view()
	assert.Equal(t, domain.ViewInquiryIssueDetail, view.View)
	assert.Equal(t, domain.ScreenInquiry, view.Screen)
	step, ok := view.Data.(domain.StepResult)
	require.True(t, ok)
	require.NotNil(t, step.IssueDetail)
	assert.Equal(t, "E12", step.IssueDetail.Code)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets, domain.ScreenInquiry}, h.c.Stack())
}

func TestController_LastWriteWins(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	ctx := context.Background()

	first, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	slow := h.gt.next(t, domain.OpCheckStatus)

	second, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	fast := h.gt.next(t, domain.OpCheckStatus)
	assert.Greater(t, second.Seq(), first.Seq())

	fast.ok(map[string]any{"comparison_status": "MATCHED"})
	res, err := second.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeStayed, res.Outcome)

	slow.ok(map[string]any{"comparison_status": "PENDING"})
	res, err = first.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDiscarded, res.Outcome)

	sl := h.c.Snapshot().Slice(domain.OpCheckStatus)
	assert.Equal(t, domain.SliceSucceeded, sl.Status)
	assert.Equal(t, second.Seq(), sl.Seq)
	assert.Equal(t, domain.ComparisonMatched, (*sl.Data).(domain.StatusResult).ComparisonStatus)
}

func TestController_SupersededErrorDiscarded(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	ctx := context.Background()

	first, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	slow := h.gt.next(t, domain.OpCheckStatus)
	second, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)

	slow.fail(errors.New("connection reset"))
	res, err := first.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDiscarded, res.Outcome)
	assert.True(t, h.c.IsBusy(domain.OpCheckStatus))
	assert.Nil(t, h.c.LastError(domain.OpCheckStatus))

	h.gt.next(t, domain.OpCheckStatus).ok(map[string]any{"comparison_status": "PENDING"})
	_, err = second.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.ViewSheetsPending, h.view().View)
}

func TestController_CommittedRollbackDiscardsInFlightResults(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	ctx := context.Background()

	pending, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	late := h.gt.next(t, domain.OpCheckStatus)

	// Forward dispatch is refused while the rollback is in flight.
	rb, err := h.c.Back(ctx)
	require.NoError(t, err)
	_, err = h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	assert.ErrorIs(t, err, domain.ErrRollbackInFlight)
	_, err = h.c.Back(ctx)
	assert.ErrorIs(t, err, domain.ErrRollbackInFlight)

	h.gt.next(t, domain.OpRollback).ok(map[string]any{"request_id": "R2"})
	_, err = rb.Wait(waitCtx(t))
	require.NoError(t, err)

	late.ok(map[string]any{"comparison_status": "MATCHED"})
	res, err := pending.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDiscarded, res.Outcome)

	snap := h.c.Snapshot()
	assert.Equal(t, domain.SliceIdle, snap.Slice(domain.OpCheckStatus).Status)
	assert.Equal(t, []domain.Screen{domain.ScreenStart}, snap.Stack)
}

func TestController_ResultFromLeftScreenIsStale(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	ctx := context.Background()

	status, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	statusCall := h.gt.next(t, domain.OpCheckStatus)

	h.do(domain.OpAddInstrument, nil, map[string]any{"instrument_id": "I-1"})
	require.Equal(t, domain.ScreenInquiry, h.view().Screen)

	statusCall.ok(map[string]any{"comparison_status": "MATCHED"})
	res, err := status.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeStale, res.Outcome)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets, domain.ScreenInquiry}, h.c.Stack())
	assert.Equal(t, domain.SliceSucceeded, h.c.Snapshot().Slice(domain.OpCheckStatus).Status)
}

func TestController_StaleResultOutsideDomainHalts(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	ctx := context.Background()

	status, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	statusCall := h.gt.next(t, domain.OpCheckStatus)

	h.do(domain.OpAddInstrument, nil, map[string]any{"instrument_id": "I-1"})
	require.Equal(t, domain.ScreenInquiry, h.view().Screen)

	statusCall.ok(map[string]any{"comparison_status": "BOGUS"})
	res, err := status.Wait(waitCtx(t))
	var nr *domain.NoRouteError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, domain.ScreenSheets, nr.Screen)
	assert.Equal(t, domain.OpCheckStatus, nr.Operation)
	assert.Equal(t, domain.OutcomeHalted, res.Outcome)
	assert.Equal(t, domain.PhaseHalted, h.c.Phase())
	assert.Equal(t, domain.ViewHalted, h.view().View)
}

func TestController_BackWaitsForMutation(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	h.do(domain.OpCheckStatus, instrument, map[string]any{"comparison_status": "MATCHED"})
	ctx := context.Background()

	add, err := h.c.Dispatch(ctx, domain.OpAddInstrument, nil)
	require.NoError(t, err)
	addCall := h.gt.next(t, domain.OpAddInstrument)

	_, err = h.c.Back(ctx)
	assert.ErrorIs(t, err, domain.ErrOperationBusy)
	assert.Equal(t, domain.PhaseActive, h.c.Phase())

	addCall.ok(map[string]any{"instrument_id": "I-1"})
	res, err := add.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAdvanced, res.Outcome)
	assert.Equal(t, domain.ScreenInquiry, res.Screen)

	// A refused rollback leaves the committed step on the stack.
	res = h.back(nil, domain.NewError(domain.KindNetwork, "timeout", "gateway timeout"))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets, domain.ScreenInquiry}, h.c.Stack())

	res = h.back(map[string]any{"request_id": "R2"}, nil)
	assert.Equal(t, domain.OutcomeRolledBack, res.Outcome)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets}, h.c.Stack())
}

func TestController_NoRouteHalts(t *testing.T) {
	var ended []domain.Phase
	h := newHarness(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnSessionEnd: func(_ context.Context, e *domain.SessionEvent) { ended = append(ended, e.Phase) },
	}))
	h.toInquiry()
	ctx := context.Background()

	ticket, err := h.c.Dispatch(ctx, domain.OpStepInquiry, nil)
	require.NoError(t, err)
	h.gt.next(t, domain.OpStepInquiry).ok(map[string]any{"bank_type": "EXTERNAL", "step": "REJECT_IMAGE"})

	res, err := ticket.Wait(waitCtx(t))
	var nr *domain.NoRouteError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, domain.ScreenInquiry, nr.Screen)
	assert.Equal(t, domain.OutcomeHalted, res.Outcome)
	assert.Equal(t, domain.PhaseHalted, h.c.Phase())
	assert.Equal(t, []domain.Phase{domain.PhaseHalted}, ended)

	_, err = h.c.Dispatch(ctx, domain.OpStepInquiry, nil)
	assert.ErrorIs(t, err, domain.ErrHalted)
	_, err = h.c.GoBack(ctx)
	assert.ErrorIs(t, err, domain.ErrHalted)

	view := h.view()
	assert.Equal(t, domain.ViewHalted, view.View)
	assert.Equal(t, []domain.Action{{Kind: domain.ActionAbandon, Label: "Abandon"}}, view.Actions)

	require.NoError(t, h.c.Abandon(ctx))
	assert.Equal(t, domain.PhaseAbandoned, h.c.Phase())
}

func TestController_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.c.GoBack(ctx)
	assert.ErrorIs(t, err, domain.ErrAtStart)

	_, err = h.c.Dispatch(ctx, domain.OpAddInstrument, nil)
	assert.ErrorIs(t, err, domain.ErrOperationNotAllowed)

	_, err = h.c.Dispatch(ctx, domain.OpRollback, nil)
	assert.ErrorIs(t, err, domain.ErrOperationNotAllowed)

	_, err = h.c.Dispatch(ctx, domain.Operation("wire-funds"), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownOperation)

	assert.ErrorIs(t, h.c.Complete(ctx), domain.ErrNotComplete)
	h.gt.idle(t)
}

func TestController_MissingFieldsFailWithoutCall(t *testing.T) {
	h := newHarness(t)
	h.toSheets()

	ticket, err := h.c.Dispatch(context.Background(), domain.OpCheckStatus, map[string]any{domain.FieldBankCode: "001"})
	require.NoError(t, err)
	res, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.KindValidation, res.Error.Kind)
	assert.False(t, res.Error.Retryable())
	h.gt.idle(t)

	view := h.view()
	assert.Equal(t, domain.ViewError, view.View)
	assert.False(t, view.Allows(domain.ActionRetry))
	assert.True(t, view.Allows(domain.ActionDispatch))
}

func TestController_MalformedFieldsFailWithoutCall(t *testing.T) {
	h := newHarness(t)
	h.toSheets()

	ticket, err := h.c.Dispatch(context.Background(), domain.OpCheckStatus, map[string]any{
		domain.FieldBankCode:      "1",
		domain.FieldAccountNumber: "99881",
		domain.FieldSerialNumber:  "000101",
	})
	require.NoError(t, err)
	res, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Error)
	assert.Equal(t, "invalid_fields", res.Error.Code)
	h.gt.idle(t)
}

func TestController_NetworkFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.toSheets()

	ticket, err := h.c.Dispatch(context.Background(), domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	h.gt.next(t, domain.OpCheckStatus).fail(errors.New("dial tcp: connection refused"))
	res, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)

	assert.Equal(t, domain.KindNetwork, res.Error.Kind)
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets}, h.c.Stack())
	view := h.view()
	assert.Equal(t, domain.ViewError, view.View)
	assert.Equal(t, domain.ActionRetry, view.Actions[0].Kind)
	assert.Equal(t, domain.OpCheckStatus, view.Actions[0].Operation)
}

func TestController_EmptyResultIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.toSheets()

	res := h.do(domain.OpCheckStatus, instrument, map[string]any{})
	assert.Equal(t, domain.KindNotFound, res.Error.Kind)

	view := h.view()
	assert.Equal(t, domain.ViewSheetsEmpty, view.View)
	assert.Equal(t, []domain.Action{{Kind: domain.ActionBack, Label: "Back"}}, view.Actions)
}

func TestController_RollbackBudget(t *testing.T) {
	h := newHarness(t, runtime.WithRollbackPolicy(runtime.RollbackPolicy{MaxAttempts: 1}))
	h.toSheets()

	h.back(nil, errors.New("unreachable"))
	_, err := h.c.GoBack(context.Background())
	assert.ErrorIs(t, err, domain.ErrRollbackExhausted)

	view := h.view()
	assert.Equal(t, domain.ViewRollbackError, view.View)
	assert.False(t, view.Allows(domain.ActionRetry))
	assert.True(t, view.Allows(domain.ActionAbandon))
}

func TestController_RollbackRetrySucceeds(t *testing.T) {
	h := newHarness(t, runtime.WithRollbackPolicy(runtime.RollbackPolicy{MaxAttempts: 3}))
	h.toInquiry()

	h.back(nil, errors.New("unreachable"))
	h.back(map[string]any{"request_id": "R2"}, nil)

	snap := h.c.Snapshot()
	assert.Equal(t, []domain.Screen{domain.ScreenStart, domain.ScreenSheets}, snap.Stack)
	assert.Equal(t, 0, snap.RollbackFailures)
	assert.Equal(t, "R2", snap.RequestID)
	assert.Equal(t, domain.ViewSheetsEntry, h.view().View)
}

func TestController_BackFromStartWithTransactionResets(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	h.back(map[string]any{"request_id": "R2"}, nil)
	h.back(map[string]any{"request_id": "R3"}, nil)

	assert.Equal(t, []domain.Screen{domain.ScreenStart}, h.c.Stack())
	assert.Equal(t, "R3", h.c.RequestID())

	// Re-initialising reuses the transaction the server handed back.
	ticket, err := h.c.Dispatch(context.Background(), domain.OpInitTransaction, nil)
	require.NoError(t, err)
	call := h.gt.next(t, domain.OpInitTransaction)
	assert.Equal(t, "R3", call.payload[domain.FieldRequestID])
	call.ok(map[string]any{"request_id": "R9"})
	res, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.KindValidation, res.Error.Kind)
	assert.Equal(t, "R3", h.c.RequestID())
}

func TestController_CompleteAndAbandon(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, s)
	}
	h := newHarness(t, runtime.WithSessionID("s-1"), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, e *domain.SessionEvent) { record("start:" + string(e.Phase)) },
		OnScreenEnter:  func(_ context.Context, e *domain.ScreenEvent) { record("enter:" + string(e.Screen)) },
		OnScreenLeave:  func(_ context.Context, e *domain.ScreenEvent) { record("leave:" + string(e.Screen)) },
		OnSessionEnd:   func(_ context.Context, e *domain.SessionEvent) { record("end:" + string(e.Phase)) },
	}))
	h.toDelivery()
	ctx := context.Background()

	assert.ErrorIs(t, h.c.Complete(ctx), domain.ErrNotComplete)
	h.do(domain.OpDeliveryInfo, nil, map[string]any{
		"branch": "Centro",
		"items":  []any{map[string]any{"name": "checkbook", "quantity": 1}},
	})
	assert.True(t, h.view().Allows(domain.ActionComplete))

	require.NoError(t, h.c.Complete(ctx))
	assert.Equal(t, domain.PhaseCompleted, h.c.Phase())
	assert.Empty(t, h.c.Stack())
	assert.Equal(t, domain.ViewCompleted, h.view().View)
	assert.ErrorIs(t, h.c.Abandon(ctx), domain.ErrSessionClosed)
	_, err := h.c.Dispatch(ctx, domain.OpDeliveryInfo, nil)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"start:active", "enter:start",
		"leave:start", "enter:sheets",
		"leave:sheets", "enter:inquiry",
		"leave:inquiry", "enter:delivery",
		"leave:delivery", "end:completed",
	}, events)
}

func TestController_AbandonDiscardsPending(t *testing.T) {
	h := newHarness(t)
	h.toSheets()
	ctx := context.Background()

	ticket, err := h.c.Dispatch(ctx, domain.OpCheckStatus, instrument)
	require.NoError(t, err)
	h.gt.next(t, domain.OpCheckStatus)

	require.NoError(t, h.c.Abandon(ctx))
	res, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDiscarded, res.Outcome)
	assert.Equal(t, domain.ViewAbandoned, h.view().View)
}
