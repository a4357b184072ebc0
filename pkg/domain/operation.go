package domain

import (
	"fmt"
	"maps"

	"github.com/aretw0/chequeflow/pkg/schema"
)

// Operation names a remote call in the catalog.
type Operation string

const (
	OpInitTransaction Operation = "init-transaction"
	OpAddInstrument   Operation = "add-instrument"
	OpCheckStatus     Operation = "check-status"
	OpStepInquiry     Operation = "step-inquiry"
	OpDeliveryInfo    Operation = "delivery-info"
	OpRollback        Operation = "rollback"
)

// SideEffect classifies what an operation does to server-side state.
type SideEffect string

const (
	SideEffectCreate   SideEffect = "create"
	SideEffectMutate   SideEffect = "mutate"
	SideEffectRead     SideEffect = "read"
	SideEffectRollback SideEffect = "rollback"
)

// Field names shared by the transport payloads.
const (
	FieldRequestID     = "request_id"
	FieldBankCode      = "bank_code"
	FieldAccountNumber = "account_number"
	FieldSerialNumber  = "serial_number"
)

// Descriptor describes an operation of the catalog.
type Descriptor struct {
	Name              Operation  `json:"name"`
	RequiresRequestID bool       `json:"requires_request_id"`
	SideEffect        SideEffect `json:"side_effect"`
	// RequiredFields must be present (and non-empty) in the dispatch payload.
	RequiredFields []string `json:"required_fields,omitempty"`
	// Fields constrains the format of payload fields once they are present.
	Fields schema.Schema `json:"fields,omitempty"`
}

// IsRollback reports whether the operation must succeed before the stack moves back.
func (d Descriptor) IsRollback() bool {
	return d.SideEffect == SideEffectRollback
}

// Mutates reports whether the operation changes server-side state outside a rollback.
func (d Descriptor) Mutates() bool {
	return d.SideEffect == SideEffectCreate || d.SideEffect == SideEffectMutate
}

var catalog = map[Operation]Descriptor{
	OpInitTransaction: {Name: OpInitTransaction, SideEffect: SideEffectCreate},
	OpAddInstrument:   {Name: OpAddInstrument, RequiresRequestID: true, SideEffect: SideEffectMutate},
	OpCheckStatus: {
		Name:              OpCheckStatus,
		RequiresRequestID: true,
		SideEffect:        SideEffectRead,
		RequiredFields:    []string{FieldBankCode, FieldAccountNumber, FieldSerialNumber},
		Fields: schema.Schema{
			FieldBankCode:      schema.Digits(3, 3),
			FieldAccountNumber: schema.Digits(1, 12),
			FieldSerialNumber:  schema.Digits(1, 12),
		},
	},
	OpStepInquiry:  {Name: OpStepInquiry, RequiresRequestID: true, SideEffect: SideEffectRead},
	OpDeliveryInfo: {Name: OpDeliveryInfo, RequiresRequestID: true, SideEffect: SideEffectRead},
	OpRollback:     {Name: OpRollback, RequiresRequestID: true, SideEffect: SideEffectRollback},
}

// Operations returns the catalog in a stable order.
func Operations() []Operation {
	return []Operation{OpInitTransaction, OpAddInstrument, OpCheckStatus, OpStepInquiry, OpDeliveryInfo, OpRollback}
}

// Describe returns the descriptor of op.
func Describe(op Operation) (Descriptor, bool) {
	d, ok := catalog[op]
	if ok {
		d.RequiredFields = append([]string(nil), d.RequiredFields...)
		d.Fields = maps.Clone(d.Fields)
	}
	return d, ok
}

// ParseOperation converts a free-form name into a catalog Operation.
func ParseOperation(v string) (Operation, error) {
	op := Operation(v)
	if _, ok := catalog[op]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, v)
	}
	return op, nil
}

func (o Operation) String() string { return string(o) }
