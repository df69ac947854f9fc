package events

import (
	"time"

	"github.com/google/uuid"
)

// Signal types pushed to viewers. Shared between the countdown and broadcast packages.

// SignalType identifies a push signal
type SignalType string

const (
	SignalPreCountdown    SignalType = "preCountdown"
	SignalPreCountdownEnd SignalType = "preCountdownEnd"
	SignalTimerStarted    SignalType = "timerStarted"
	SignalTimerReset      SignalType = "timerReset"
)

// Signal is a single push notification. Only Count (on preCountdown) carries
// data a viewer may display directly; every other signal means "re-pull /timer".
type Signal struct {
	ID        string     `json:"id"`
	Type      SignalType `json:"type"`
	Count     int        `json:"count,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewSignal builds a signal stamped with a fresh ID.
func NewSignal(t SignalType, at time.Time) Signal {
	return Signal{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: at.UTC(),
	}
}

// NewPreCountdown builds a preCountdown(n) signal.
func NewPreCountdown(count int, at time.Time) Signal {
	s := NewSignal(SignalPreCountdown, at)
	s.Count = count
	return s
}

// TriggersResync reports whether a viewer must re-query the timer on receipt.
func (s Signal) TriggersResync() bool {
	return s.Type != SignalPreCountdown
}
