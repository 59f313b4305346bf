package boltcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverErrorUnwrapsToLatestCause(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	de := New(CodeServiceUnavailable, "no reachable router").WithCause(base)
	require.ErrorIs(t, de, base)
	assert.Equal(t, base, de.Unwrap())
}

func TestCodeOfDefaultsToClientErrorForForeignErrors(t *testing.T) {
	assert.Equal(t, CodeClientError, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeAcquisitionTimeout, CodeOf(New(CodeAcquisitionTimeout, "timed out")))
}

func TestIsRetriableTransientSubcodes(t *testing.T) {
	assert.True(t, IsRetriable(CodeTransient, "Transaction.OtherKind"))
	assert.False(t, IsRetriable(CodeTransient, "Transaction.Terminated"))
	assert.False(t, IsRetriable(CodeTransient, "Transaction.LockClientStopped"))
	assert.True(t, IsRetriable(CodeServiceUnavailable, ""))
	assert.False(t, IsRetriable(CodeAuthentication, ""))
}

func TestErrorClassGroups(t *testing.T) {
	assert.True(t, IsSecurity(CodeTokenExpired))
	assert.True(t, IsAvailability(CodeServiceUnavailable))
	assert.True(t, IsWriteFailure(CodeNotALeader))
	assert.False(t, IsSecurity(CodeTransient))
}

func TestDriverErrorMessageIncludesCauseCount(t *testing.T) {
	de := New(CodeSessionExpired, "retry exhausted").
		WithCause(errors.New("first")).
		WithCause(errors.New("second"))
	assert.Contains(t, de.Error(), "2 prior attempt")
}
