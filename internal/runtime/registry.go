package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/chequeflow/internal/codec"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/aretw0/chequeflow/pkg/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/chequeflow/internal/runtime"

// Registry binds the operation catalog to a transport.
// It owns payload preparation, required field checks and result decoding.
type Registry struct {
	transport ports.Transport
	decoder   *codec.Decoder
	tracer    trace.Tracer
	timeout   time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) RegistryOption {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithCallTimeout bounds every transport call. Zero disables the bound.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.timeout = d
	}
}

// NewRegistry creates a registry calling transport.
func NewRegistry(transport ports.Transport, opts ...RegistryOption) *Registry {
	r := &Registry{
		transport: transport,
		decoder:   codec.NewDecoder(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Describe returns the descriptor of op.
func (r *Registry) Describe(op domain.Operation) (domain.Descriptor, error) {
	desc, ok := domain.Describe(op)
	if !ok {
		return domain.Descriptor{}, fmt.Errorf("%w: %q", domain.ErrUnknownOperation, op)
	}
	return desc, nil
}

// Validate checks that payload carries every field the operation requires
// and that each constrained field has the expected format.
func (r *Registry) Validate(desc domain.Descriptor, payload map[string]any) *domain.ErrorInfo {
	var missing []string
	for _, field := range desc.RequiredFields {
		v, ok := payload[field]
		if !ok || v == nil || v == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return domain.NewError(domain.KindValidation, "missing_fields", fmt.Sprintf("missing required fields: %v", missing))
	}
	if err := schema.Validate(desc.Fields, payload); err != nil {
		return domain.NewError(domain.KindValidation, "invalid_fields", err.Error())
	}
	return nil
}

// Prepare copies payload and stamps the request id read at dispatch time.
// Operations that do not require an id still carry it when one exists.
func (r *Registry) Prepare(desc domain.Descriptor, payload map[string]any, requestID string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	if requestID != "" {
		out[domain.FieldRequestID] = requestID
	} else {
		delete(out, domain.FieldRequestID)
	}
	return out
}

// Call performs the transport round trip for desc and decodes the result.
// Every failure is returned as an ErrorInfo; it never panics across the boundary.
func (r *Registry) Call(ctx context.Context, desc domain.Descriptor, payload map[string]any) (domain.Payload, *domain.ErrorInfo) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := r.tracer.Start(ctx, "chequeflow."+string(desc.Name),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("chequeflow.operation", string(desc.Name)),
			attribute.String("chequeflow.side_effect", string(desc.SideEffect)),
		),
	)
	defer span.End()
	if id, ok := payload[domain.FieldRequestID].(string); ok {
		span.SetAttributes(attribute.String("chequeflow.request_id", id))
	}

	raw, err := r.transport.Call(ctx, desc.Name, payload)
	if err != nil {
		info := domain.Classify(err)
		recordError(span, info)
		return nil, info
	}

	result, err := r.decoder.Decode(desc.Name, raw)
	if err != nil {
		info := domain.Classify(err)
		recordError(span, info)
		return nil, info
	}
	return result, nil
}

func recordError(span trace.Span, info *domain.ErrorInfo) {
	span.RecordError(info)
	span.SetStatus(codes.Error, info.Message)
	span.SetAttributes(attribute.String("chequeflow.error_kind", string(info.Kind)))
}
