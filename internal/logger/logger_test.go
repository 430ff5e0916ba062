package logger

import (
	"errors"
	"testing"

	"storefront-payments/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New(config.Log{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(config.Log{Level: "WARN", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	_, err = New(config.Log{Level: "loud"})
	assert.Error(t, err)
}

func TestEventHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	PaymentEvent(l, "payment_completed", zap.String("order_id", "o-1"))
	AuditEvent(l, "duplicate_payment_event", zap.String("external_id", "tx-1"))
	Error(l, errors.New("boom"), "notify failed")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "payment_completed", entries[0].ContextMap()["event"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "tx-1", entries[1].ContextMap()["external_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}
