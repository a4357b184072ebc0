package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/ports"
)

func TestManager_LockLifecycle(t *testing.T) {
	eng, err := chequeflow.New(ports.TransportFunc(func(context.Context, domain.Operation, map[string]any) (map[string]any, error) {
		return nil, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	mgr := NewManager(eng)
	ctx := context.Background()
	count := 1000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		if _, err := mgr.Create(ctx, sid); err != nil {
			t.Fatal(err)
		}
		if err := mgr.Close(ctx, sid); err != nil {
			t.Fatal(err)
		}
	}

	if lockCount := len(mgr.locks); lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Close", lockCount)
	}
	if n := len(mgr.flows); n != 0 {
		t.Errorf("expected no live flows, got %d", n)
	}
}
