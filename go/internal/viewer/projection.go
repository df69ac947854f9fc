package viewer

import (
	"fmt"
	"time"
)

// UrgentThreshold is the remaining time below which the display is flagged urgent.
const UrgentThreshold = 30 * time.Second

// Phase is what the display is currently showing.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhasePreCountdown Phase = "pre_countdown"
	PhaseRunning      Phase = "running"
	PhaseTimeUp       Phase = "time_up"
)

// State is the viewer's local copy of the timer: the last authoritative pull
// plus the ephemeral pre-countdown digit.
type State struct {
	Running   bool
	StartTime time.Time
	Duration  time.Duration
	PreCount  int // 0 when no pre-countdown is showing
}

// Frame is one rendered display.
type Frame struct {
	Phase     Phase
	PreCount  int
	Remaining time.Duration
	Clock     string // HH:MM:SS
	Urgent    bool
}

// Project computes the display for s at now. Remaining time is derived
// locally from the pulled (startTime, duration) pair.
func Project(s State, now time.Time) Frame {
	if s.PreCount > 0 {
		return Frame{Phase: PhasePreCountdown, PreCount: s.PreCount, Clock: FormatClock(0)}
	}
	if !s.Running {
		return Frame{Phase: PhaseIdle, Clock: FormatClock(0)}
	}

	remaining := s.Duration - now.Sub(s.StartTime)
	if remaining <= 0 {
		return Frame{Phase: PhaseTimeUp, Clock: FormatClock(0)}
	}

	return Frame{
		Phase:     PhaseRunning,
		Remaining: remaining,
		Clock:     FormatClock(remaining),
		Urgent:    remaining.Truncate(time.Second) <= UrgentThreshold,
	}
}

// FormatClock renders d as zero-padded HH:MM:SS, flooring partial seconds.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
