package countdown

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerRecord_ExpiryBoundary(t *testing.T) {
	rec := &TimerRecord{StartTime: t0, Duration: time.Minute, IsRunning: true}

	assert.True(t, rec.Current(t0))
	assert.True(t, rec.Current(t0.Add(time.Minute-time.Nanosecond)))
	assert.False(t, rec.Current(t0.Add(time.Minute)), "elapsed == duration is expired")
	assert.Equal(t, time.Duration(0), rec.Remaining(t0.Add(2*time.Minute)))
	assert.Equal(t, 15*time.Second, rec.Remaining(t0.Add(45*time.Second)))
	assert.Equal(t, t0.Add(time.Minute), rec.Deadline())
}

func TestTimerRecord_CurrentNil(t *testing.T) {
	var rec *TimerRecord
	assert.False(t, rec.Current(t0))
	assert.Equal(t, NotRunning(), ViewOf(rec, t0))
}

func TestTimerView_JSON(t *testing.T) {
	data, err := json.Marshal(NotRunning())
	require.NoError(t, err)
	assert.JSONEq(t, `{"running":false}`, string(data))

	rec := &TimerRecord{StartTime: t0, Duration: 24 * time.Hour, IsRunning: true}
	data, err = json.Marshal(ViewOf(rec, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"running":true,"startTime":"2026-10-19T09:00:00Z","duration":86400000}`, string(data))
}
