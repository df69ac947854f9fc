package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_JSON(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.FixedZone("CEST", 2*60*60))

	pre := NewPreCountdown(3, at)
	data, err := json.Marshal(pre)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "preCountdown", decoded["type"])
	assert.Equal(t, float64(3), decoded["count"])
	assert.Equal(t, "2026-10-19T07:00:00Z", decoded["timestamp"])
	assert.NotEmpty(t, decoded["id"])

	started := NewSignal(SignalTimerStarted, at)
	data, err = json.Marshal(started)
	require.NoError(t, err)
	decoded = nil
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "count")
	assert.NotEqual(t, pre.ID, started.ID)
}

func TestSignal_TriggersResync(t *testing.T) {
	assert.False(t, NewPreCountdown(5, time.Now()).TriggersResync())
	for _, typ := range []SignalType{SignalPreCountdownEnd, SignalTimerStarted, SignalTimerReset} {
		assert.True(t, NewSignal(typ, time.Now()).TriggersResync(), typ)
	}
}
