package domain

import "time"

// Payload is the typed success result of an operation.
// Every operation has exactly one concrete payload type.
type Payload interface {
	// Operation returns the operation that produced the payload.
	Operation() Operation
	// Empty reports whether the result set carries nothing to show.
	Empty() bool
}

// BankType tells whether the instrument is drawn on the operating bank.
type BankType string

const (
	BankInternal BankType = "INTERNAL"
	BankExternal BankType = "EXTERNAL"
)

// ComparisonStatus is the outcome of comparing the submitted instrument with the bank's record.
type ComparisonStatus string

const (
	ComparisonMatched    ComparisonStatus = "MATCHED"
	ComparisonMismatched ComparisonStatus = "MISMATCHED"
	ComparisonPending    ComparisonStatus = "PENDING"
)

// Step is the server-side validation step of an added instrument.
type Step string

const (
	StepConfirm     Step = "CONFIRM"
	StepReject      Step = "REJECT"
	StepRejectImage Step = "REJECT_IMAGE"
	StepIssue       Step = "ISSUE"
	StepPending     Step = "PENDING"
	StepDelivery    Step = "DELIVERY"
)

// InitResult opens a transaction.
type InitResult struct {
	RequestID string `json:"request_id" mapstructure:"request_id"`
}

func (InitResult) Operation() Operation { return OpInitTransaction }
func (r InitResult) Empty() bool        { return r.RequestID == "" }

// AddInstrumentResult confirms the reservation of an instrument.
type AddInstrumentResult struct {
	InstrumentID string `json:"instrument_id" mapstructure:"instrument_id"`
	Amount       int64  `json:"amount,omitempty" mapstructure:"amount"`
	Currency     string `json:"currency,omitempty" mapstructure:"currency"`
}

func (AddInstrumentResult) Operation() Operation { return OpAddInstrument }
func (r AddInstrumentResult) Empty() bool        { return r.InstrumentID == "" }

// Sheet is one leaf of an instrument booklet.
type Sheet struct {
	Serial string `json:"serial" mapstructure:"serial"`
	State  string `json:"state,omitempty" mapstructure:"state"`
}

// StatusResult is the comparison between the submitted fields and the bank's record.
type StatusResult struct {
	ComparisonStatus ComparisonStatus `json:"comparison_status" mapstructure:"comparison_status"`
	Sheets           []Sheet          `json:"sheets,omitempty" mapstructure:"sheets"`
	Message          string           `json:"message,omitempty" mapstructure:"message"`
}

func (StatusResult) Operation() Operation { return OpCheckStatus }
func (r StatusResult) Empty() bool        { return r.ComparisonStatus == "" && len(r.Sheets) == 0 }

// Issue details a problem raised during validation.
type Issue struct {
	Code        string `json:"code" mapstructure:"code"`
	Description string `json:"description" mapstructure:"description"`
}

// StepResult reports where the instrument is in the server-side validation.
type StepResult struct {
	BankType    BankType `json:"bank_type" mapstructure:"bank_type"`
	Step        Step     `json:"step" mapstructure:"step"`
	Reason      string   `json:"reason,omitempty" mapstructure:"reason"`
	ImageURL    string   `json:"image_url,omitempty" mapstructure:"image_url"`
	IssueDetail *Issue   `json:"issue_detail,omitempty" mapstructure:"issue_detail"`
}

func (StepResult) Operation() Operation { return OpStepInquiry }
func (r StepResult) Empty() bool        { return r.BankType == "" && r.Step == "" }

// DeliveryItem is one deliverable of the transaction.
type DeliveryItem struct {
	Name     string `json:"name" mapstructure:"name"`
	Quantity int    `json:"quantity" mapstructure:"quantity"`
}

// DeliveryResult describes where the processed instrument can be collected.
type DeliveryResult struct {
	Branch     string         `json:"branch" mapstructure:"branch"`
	Address    string         `json:"address,omitempty" mapstructure:"address"`
	ExpectedAt time.Time      `json:"expected_at,omitempty" mapstructure:"expected_at"`
	Items      []DeliveryItem `json:"items" mapstructure:"items"`
}

func (DeliveryResult) Operation() Operation { return OpDeliveryInfo }
func (r DeliveryResult) Empty() bool        { return len(r.Items) == 0 }

// RollbackResult acknowledges a server-side rollback and carries the request id to use next.
type RollbackResult struct {
	RequestID string `json:"request_id" mapstructure:"request_id"`
}

func (RollbackResult) Operation() Operation { return OpRollback }
func (r RollbackResult) Empty() bool        { return r.RequestID == "" }
