package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	for _, op := range domain.Operations() {
		d, ok := domain.Describe(op)
		require.True(t, ok, "missing descriptor for %s", op)
		assert.Equal(t, op, d.Name)
		if op == domain.OpInitTransaction {
			assert.False(t, d.RequiresRequestID)
			assert.Equal(t, domain.SideEffectCreate, d.SideEffect)
		} else {
			assert.True(t, d.RequiresRequestID, "%s must carry the request id", op)
		}
	}

	rb, _ := domain.Describe(domain.OpRollback)
	assert.True(t, rb.IsRollback())

	cs, _ := domain.Describe(domain.OpCheckStatus)
	assert.ElementsMatch(t, []string{domain.FieldBankCode, domain.FieldAccountNumber, domain.FieldSerialNumber}, cs.RequiredFields)
}

func TestParseOperation(t *testing.T) {
	op, err := domain.ParseOperation("check-status")
	require.NoError(t, err)
	assert.Equal(t, domain.OpCheckStatus, op)

	_, err = domain.ParseOperation("transfer")
	assert.ErrorIs(t, err, domain.ErrUnknownOperation)
}

func TestParseScreen(t *testing.T) {
	s, err := domain.ParseScreen("inquiry")
	require.NoError(t, err)
	assert.Equal(t, domain.ScreenInquiry, s)

	_, err = domain.ParseScreen("confirm")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	plain := errors.New("connection reset")
	info := domain.Classify(plain)
	assert.Equal(t, domain.KindNetwork, info.Kind)
	assert.True(t, info.Retryable())
	assert.ErrorIs(t, info, plain)

	server := domain.NewError(domain.KindValidation, "E42", "serial rejected")
	wrapped := fmt.Errorf("call failed: %w", server)
	info = domain.Classify(wrapped)
	assert.Equal(t, domain.KindValidation, info.Kind)
	assert.Equal(t, "E42", info.Code)
	assert.False(t, info.Retryable())

	assert.Nil(t, domain.Classify(nil))
}
