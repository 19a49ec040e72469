package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultLoggerIsUsable(t *testing.T) {
	// The package-level logger must be safe before Initialize.
	require.NotNil(t, Logger)
	Logger.Debugw("no-op", "key", "value")
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	assert.True(t, JSONOutput)
	require.NotNil(t, Logger)
}

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	assert.False(t, JSONOutput)
	require.NotNil(t, Logger)
}

func TestInitializeLevel(t *testing.T) {
	err := InitializeLevel(true, zap.WarnLevel)
	require.NoError(t, err)
	require.NotNil(t, Logger)
}

func TestNamed(t *testing.T) {
	require.NoError(t, Initialize(false))
	child := Named("session")
	require.NotNil(t, child)
	child.Debugw("scoped", "id", 1)
}
