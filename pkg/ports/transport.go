package ports

import (
	"context"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// Transport performs the remote call behind a catalog operation.
// It is the only suspension point of the workflow engine.
type Transport interface {
	// Call executes op with the given payload. The payload already carries the
	// request id when the operation requires one. Server-classified failures
	// should be returned as *domain.ErrorInfo; any other error is treated as a
	// retryable network failure.
	Call(ctx context.Context, op domain.Operation, payload map[string]any) (map[string]any, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, op domain.Operation, payload map[string]any) (map[string]any, error)

// Call implements Transport.
func (f TransportFunc) Call(ctx context.Context, op domain.Operation, payload map[string]any) (map[string]any, error) {
	return f(ctx, op, payload)
}
