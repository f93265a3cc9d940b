package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New("nonsense")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestAdapterKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewAdapter(zap.New(core)).Named("accounts")

	a.Info("login.reset-email.sent", "code", "login.reset-email.sent", "user_id", 123)
	a.Warn("reset-password.alert-failed", "error", "boom")
	a.Debug("debug")
	a.Error("error")

	require.Equal(t, 4, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "login.reset-email.sent", entry.Message)
	assert.Equal(t, "accounts", entry.LoggerName)
	assert.Equal(t, map[string]any{"code": "login.reset-email.sent", "user_id": int64(123)}, entry.ContextMap())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
}

func TestNilLoggerIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewAdapter(nil).Info("ignored", "k", "v")
	})
}
