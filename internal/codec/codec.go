// Package codec validates raw transport results and converts them into the
// typed payload of each operation before they reach a RequestSlice.
package codec

import (
	"fmt"
	"time"

	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// requiredKeys lists the response keys without which a payload is malformed.
// Missing optional data is not a protocol error; it surfaces as an empty result.
var requiredKeys = map[domain.Operation][]string{
	domain.OpInitTransaction: {domain.FieldRequestID},
	domain.OpAddInstrument:   {"instrument_id"},
	domain.OpRollback:        {domain.FieldRequestID},
}

// Decoder converts raw results into domain payloads.
type Decoder struct {
	timeLayout string
}

// NewDecoder creates a decoder that parses timestamps as RFC 3339.
func NewDecoder() *Decoder {
	return &Decoder{timeLayout: time.RFC3339}
}

// Decode validates raw against the shape of op's payload.
// Shape problems are reported as a protocol ErrorInfo. Enumerated fields are
// not checked here: values outside the declared domain are the transition
// table's concern.
func (d *Decoder) Decode(op domain.Operation, raw map[string]any) (domain.Payload, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	for _, key := range requiredKeys[op] {
		v, ok := raw[key]
		if !ok || v == nil || v == "" {
			return nil, protocolError(op, fmt.Sprintf("missing %q", key), nil)
		}
	}

	var (
		payload domain.Payload
		err     error
	)
	switch op {
	case domain.OpInitTransaction:
		payload, err = decodeInto[domain.InitResult](d, raw)
	case domain.OpAddInstrument:
		payload, err = decodeInto[domain.AddInstrumentResult](d, raw)
	case domain.OpCheckStatus:
		payload, err = decodeInto[domain.StatusResult](d, raw)
	case domain.OpStepInquiry:
		payload, err = decodeInto[domain.StepResult](d, raw)
	case domain.OpDeliveryInfo:
		payload, err = decodeInto[domain.DeliveryResult](d, raw)
	case domain.OpRollback:
		payload, err = decodeInto[domain.RollbackResult](d, raw)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownOperation, op)
	}
	if err != nil {
		return nil, protocolError(op, "malformed response", err)
	}
	return payload, nil
}

func decodeInto[T domain.Payload](d *Decoder, raw map[string]any) (domain.Payload, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &out,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeHookFunc(d.timeLayout),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return out, nil
}

func protocolError(op domain.Operation, msg string, cause error) *domain.ErrorInfo {
	info := &domain.ErrorInfo{
		Kind:    domain.KindProtocol,
		Code:    "malformed_" + string(op),
		Message: msg,
		Cause:   cause,
	}
	if cause != nil {
		info.Message = fmt.Sprintf("%s: %v", msg, cause)
	}
	return info
}
