package domain

// ViewID names a concrete view the presentation layer can mount.
type ViewID string

const (
	ViewStartSelect ViewID = "start.select"

	ViewSheetsEntry      ViewID = "sheets.entry"
	ViewSheetsMatched    ViewID = "sheets.matched"
	ViewSheetsMismatched ViewID = "sheets.mismatched"
	ViewSheetsPending    ViewID = "sheets.pending"
	ViewSheetsEmpty      ViewID = "sheets.empty"

	ViewInquiryEntry           ViewID = "inquiry.entry"
	ViewInquiryConfirm         ViewID = "inquiry.confirm"
	ViewInquiryConfirmExternal ViewID = "inquiry.confirm_external"
	ViewInquiryReject          ViewID = "inquiry.reject"
	ViewInquiryRejectImage     ViewID = "inquiry.reject_image"
	ViewInquiryIssueDetail     ViewID = "inquiry.issue_detail"
	ViewInquiryPending         ViewID = "inquiry.pending"
	ViewInquiryDeliveryReady   ViewID = "inquiry.delivery_ready"
	ViewInquiryEmpty           ViewID = "inquiry.empty"

	ViewDeliveryEntry   ViewID = "delivery.entry"
	ViewDeliveryDetails ViewID = "delivery.details"
	ViewDeliveryEmpty   ViewID = "delivery.empty"

	ViewError         ViewID = "error"
	ViewRollbackError ViewID = "rollback.error"
	ViewHalted        ViewID = "halted"
	ViewCompleted     ViewID = "completed"
	ViewAbandoned     ViewID = "abandoned"
)

// ActionKind is an affordance offered by a view.
type ActionKind string

const (
	ActionDispatch ActionKind = "dispatch"
	ActionRetry    ActionKind = "retry"
	ActionBack     ActionKind = "back"
	ActionAbandon  ActionKind = "abandon"
	ActionComplete ActionKind = "complete"
)

// Action is one affordance of a view. Operation is set for dispatch and retry.
type Action struct {
	Kind      ActionKind `json:"kind"`
	Operation Operation  `json:"operation,omitempty"`
	Label     string     `json:"label"`
}

// ErrorView is the view-level rendering of a slice failure.
type ErrorView struct {
	Operation Operation `json:"operation"`
	Kind      ErrorKind `json:"kind"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// ViewDescriptor tells the presentation layer what to mount for the top screen.
type ViewDescriptor struct {
	Screen  Screen     `json:"screen"`
	View    ViewID     `json:"view"`
	Title   string     `json:"title"`
	Busy    bool       `json:"busy"`
	Actions []Action   `json:"actions"`
	Error   *ErrorView `json:"error,omitempty"`
	Data    Payload    `json:"data,omitempty"`
}

// Allows reports whether the view offers an action of the given kind.
func (v ViewDescriptor) Allows(kind ActionKind) bool {
	for _, a := range v.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}
