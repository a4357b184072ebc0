package runtime

import (
	"testing"

	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeeded(seq uint64, origin domain.Screen, p domain.Payload) *domain.RequestSlice[domain.Payload] {
	sl := &domain.RequestSlice[domain.Payload]{}
	sl.Dispatch(seq, origin, "R1", 0)
	sl.Resolve(seq, p)
	return sl
}

func failed(seq uint64, origin domain.Screen, info *domain.ErrorInfo) *domain.RequestSlice[domain.Payload] {
	sl := &domain.RequestSlice[domain.Payload]{}
	sl.Dispatch(seq, origin, "R1", 0)
	sl.Reject(seq, info)
	return sl
}

func snapshot(stack []domain.Screen, slices map[domain.Operation]*domain.RequestSlice[domain.Payload]) *domain.Snapshot {
	return &domain.Snapshot{RequestID: "R1", Phase: domain.PhaseActive, Stack: stack, Slices: slices}
}

var (
	atSheets   = []domain.Screen{domain.ScreenStart, domain.ScreenSheets}
	atInquiry  = []domain.Screen{domain.ScreenStart, domain.ScreenSheets, domain.ScreenInquiry}
	atDelivery = []domain.Screen{domain.ScreenStart, domain.ScreenSheets, domain.ScreenInquiry, domain.ScreenDelivery}
)

func TestResolve_Views(t *testing.T) {
	tests := []struct {
		name string
		snap *domain.Snapshot
		want domain.ViewID
	}{
		{"start", snapshot([]domain.Screen{domain.ScreenStart}, nil), domain.ViewStartSelect},
		{"sheets idle", snapshot(atSheets, nil), domain.ViewSheetsEntry},
		{"sheets matched", snapshot(atSheets, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpCheckStatus: succeeded(2, domain.ScreenSheets, domain.StatusResult{ComparisonStatus: domain.ComparisonMatched}),
		}), domain.ViewSheetsMatched},
		{"inquiry external confirm", snapshot(atInquiry, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpStepInquiry: succeeded(3, domain.ScreenInquiry, domain.StepResult{BankType: domain.BankExternal, Step: domain.StepConfirm}),
		}), domain.ViewInquiryConfirmExternal},
		{"inquiry internal confirm", snapshot(atInquiry, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpStepInquiry: succeeded(3, domain.ScreenInquiry, domain.StepResult{BankType: domain.BankInternal, Step: domain.StepConfirm}),
		}), domain.ViewInquiryConfirm},
		{"inquiry delivery ready", snapshot(atInquiry, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpStepInquiry: succeeded(3, domain.ScreenInquiry, domain.StepResult{BankType: domain.BankInternal, Step: domain.StepDelivery}),
		}), domain.ViewInquiryDeliveryReady},
		{"delivery idle", snapshot(atDelivery, nil), domain.ViewDeliveryEntry},
		{"delivery details", snapshot(atDelivery, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpDeliveryInfo: succeeded(4, domain.ScreenDelivery, domain.DeliveryResult{Items: []domain.DeliveryItem{{Name: "checkbook", Quantity: 1}}}),
		}), domain.ViewDeliveryDetails},
		{"delivery empty", snapshot(atDelivery, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpDeliveryInfo: failed(4, domain.ScreenDelivery, domain.NewError(domain.KindNotFound, "empty_result", "none")),
		}), domain.ViewDeliveryEmpty},
		{"completed", &domain.Snapshot{Phase: domain.PhaseCompleted}, domain.ViewCompleted},
		{"abandoned", &domain.Snapshot{Phase: domain.PhaseAbandoned}, domain.ViewAbandoned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := Resolve(tt.snap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, view.View)

			// Resolving again yields the same descriptor.
			again, err := Resolve(tt.snap)
			require.NoError(t, err)
			assert.Equal(t, view, again)
		})
	}
}

func TestResolve_StaleWhileError(t *testing.T) {
	sl := succeeded(2, domain.ScreenSheets, domain.StatusResult{ComparisonStatus: domain.ComparisonPending})
	sl.Dispatch(5, domain.ScreenSheets, "R1", 0)
	sl.Reject(5, domain.NewError(domain.KindNetwork, "transport", "reset"))

	view, err := Resolve(snapshot(atSheets, map[domain.Operation]*domain.RequestSlice[domain.Payload]{domain.OpCheckStatus: sl}))
	require.NoError(t, err)
	assert.Equal(t, domain.ViewError, view.View)
	require.NotNil(t, view.Error)
	assert.True(t, view.Error.Retryable)
	assert.Equal(t, domain.OpCheckStatus, view.Error.Operation)
	assert.Equal(t, domain.StatusResult{ComparisonStatus: domain.ComparisonPending}, view.Data)
}

func TestResolve_LatestFailureWins(t *testing.T) {
	view, err := Resolve(snapshot(atSheets, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
		domain.OpCheckStatus:   failed(2, domain.ScreenSheets, domain.NewError(domain.KindNetwork, "transport", "reset")),
		domain.OpAddInstrument: failed(3, domain.ScreenSheets, domain.NewError(domain.KindValidation, "limit", "over limit")),
	}))
	require.NoError(t, err)
	require.NotNil(t, view.Error)
	assert.Equal(t, domain.OpAddInstrument, view.Error.Operation)
	assert.False(t, view.Allows(domain.ActionRetry))
}

func TestResolve_BusyHidesDispatch(t *testing.T) {
	sl := &domain.RequestSlice[domain.Payload]{}
	sl.Dispatch(2, domain.ScreenSheets, "R1", 0)

	view, err := Resolve(snapshot(atSheets, map[domain.Operation]*domain.RequestSlice[domain.Payload]{domain.OpCheckStatus: sl}))
	require.NoError(t, err)
	assert.True(t, view.Busy)
	assert.False(t, view.Allows(domain.ActionDispatch))
	assert.True(t, view.Allows(domain.ActionBack))
}

func TestResolve_RollingBack(t *testing.T) {
	snap := snapshot(atSheets, nil)
	snap.Phase = domain.PhaseRollingBack

	view, err := Resolve(snap)
	require.NoError(t, err)
	assert.True(t, view.Busy)
	assert.Equal(t, []domain.Action{abandonAction}, view.Actions)
}

func TestResolve_RollbackFailureOnlyOnOriginScreen(t *testing.T) {
	rb := failed(3, domain.ScreenInquiry, &domain.ErrorInfo{Kind: domain.KindRollbackFailed, Message: "down"})

	view, err := Resolve(snapshot(atInquiry, map[domain.Operation]*domain.RequestSlice[domain.Payload]{domain.OpRollback: rb}))
	require.NoError(t, err)
	assert.Equal(t, domain.ViewRollbackError, view.View)
	assert.True(t, view.Allows(domain.ActionRetry))

	view, err = Resolve(snapshot(atSheets, map[domain.Operation]*domain.RequestSlice[domain.Payload]{domain.OpRollback: rb}))
	require.NoError(t, err)
	assert.Equal(t, domain.ViewSheetsEntry, view.View)
}

func TestResolve_StartBackOnlyWithTransaction(t *testing.T) {
	snap := snapshot([]domain.Screen{domain.ScreenStart}, nil)
	view, err := Resolve(snap)
	require.NoError(t, err)
	assert.True(t, view.Allows(domain.ActionBack))

	snap.RequestID = ""
	view, err = Resolve(snap)
	require.NoError(t, err)
	assert.False(t, view.Allows(domain.ActionBack))
}

func TestResolve_OutsideDomain(t *testing.T) {
	tests := []struct {
		name string
		snap *domain.Snapshot
	}{
		{"unknown screen", snapshot([]domain.Screen{"review"}, nil)},
		{"empty stack", snapshot(nil, nil)},
		{"unknown status", snapshot(atSheets, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpCheckStatus: succeeded(2, domain.ScreenSheets, domain.StatusResult{ComparisonStatus: "LOST"}),
		})},
		{"external reject image", snapshot(atInquiry, map[domain.Operation]*domain.RequestSlice[domain.Payload]{
			domain.OpStepInquiry: succeeded(3, domain.ScreenInquiry, domain.StepResult{BankType: domain.BankExternal, Step: domain.StepRejectImage}),
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.snap)
			var nr *domain.NoRouteError
			assert.ErrorAs(t, err, &nr)
		})
	}
}
