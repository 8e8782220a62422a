package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T) (*ZapLogger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return fromCore(core), logs
}

func TestEntriesCarryModuleAndDetails(t *testing.T) {
	log, logs := observed(t)

	log.Info("DraftManager", "Draft saved", map[string]interface{}{"draft_id": "d-1", "version": 2})

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Draft saved", entries[0].Message)
	assert.Equal(t, "DraftManager", fields["module"])
	assert.Equal(t, serviceName, fields["service"])
	assert.Equal(t, map[string]interface{}{"draft_id": "d-1", "version": 2}, fields["details"])
}

func TestNilDetailsAreOmitted(t *testing.T) {
	log, logs := observed(t)

	log.Warn("Hub", "Client dropped", nil)

	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "details")
}

func TestErrorLiftsErrorField(t *testing.T) {
	log, logs := observed(t)

	log.Error("ContextStore", "Persist failed", map[string]interface{}{"error": errors.New("redis down")})
	log.Error("ContextStore", "Persist failed", map[string]interface{}{"error": "redis down"})

	for _, e := range logs.All() {
		assert.Equal(t, "redis down", e.ContextMap()["error"])
	}
}

func TestNewWithoutSinksDiscards(t *testing.T) {
	log := New(Options{})
	log.Info("Test", "dropped", nil)
	assert.NoError(t, log.Sync())
}
