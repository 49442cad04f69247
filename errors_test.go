package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeErrorWrapping(t *testing.T) {
	cause := errors.New("spawn failed")
	err := NewRuntimeError(cause)

	assert.True(t, IsRuntimeError(err))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "runtime error")

	// Detection survives further wrapping.
	wrapped := fmt.Errorf("failed to create orchestrator: %w", err)
	assert.True(t, IsRuntimeError(wrapped))
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("unknown environment %q", "safari")
	assert.True(t, IsConfigurationError(err))
	assert.False(t, IsRuntimeError(err))
	assert.Contains(t, err.Error(), `unknown environment "safari"`)
}

func TestDiscoveryError(t *testing.T) {
	cause := errors.New("no test modules found")
	err := NewDiscoveryError(cause)
	assert.True(t, IsDiscoveryError(err))
	assert.True(t, errors.Is(err, cause))
}

func TestUnitFailureError(t *testing.T) {
	err := NewUnitFailureError("run abc: 1 passed, 2 failed")
	require.Error(t, err)
	assert.True(t, IsUnitFailureError(err))
	assert.False(t, IsRuntimeError(err))
}

func TestIsHelpersRejectUnrelatedErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.False(t, IsRuntimeError(plain))
	assert.False(t, IsConfigurationError(plain))
	assert.False(t, IsDiscoveryError(plain))
	assert.False(t, IsUnitFailureError(plain))

	assert.False(t, IsRuntimeError(nil))
}
