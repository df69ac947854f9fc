package countdown

import (
	"time"
)

// DefaultDuration is the reference deployment's countdown length.
const DefaultDuration = 24 * time.Hour

// State is the lifecycle phase of the single global timer
type State string

const (
	StateIdle         State = "IDLE"
	StatePreCountdown State = "PRE_COUNTDOWN"
	StateRunning      State = "RUNNING"
)

// StartOutcome is the result of an accepted or rejected start request
type StartOutcome string

const (
	OutcomeStarted        StartOutcome = "Countdown Started"
	OutcomeAlreadyRunning StartOutcome = "Already Running"
)

// TimerRecord is the durable singleton. It is replaced, never updated.
type TimerRecord struct {
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"-"`
	IsRunning bool          `json:"isRunning"`
}

// DurationMs returns the record duration in whole milliseconds.
func (r TimerRecord) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Deadline is the instant the countdown reaches zero.
func (r TimerRecord) Deadline() time.Time {
	return r.StartTime.Add(r.Duration)
}

// Expired reports whether now - startTime >= duration.
func (r TimerRecord) Expired(now time.Time) bool {
	return now.Sub(r.StartTime) >= r.Duration
}

// Remaining returns the time left at now, floored at zero.
func (r TimerRecord) Remaining(now time.Time) time.Duration {
	remaining := r.Duration - now.Sub(r.StartTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Current reports whether the record is a live countdown at now.
func (r *TimerRecord) Current(now time.Time) bool {
	return r != nil && r.IsRunning && r.Duration > 0 && !r.Expired(now)
}

// TimerView is the authoritative answer served to viewers.
type TimerView struct {
	Running   bool       `json:"running"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
}

// NotRunning is the fail-safe view.
func NotRunning() TimerView {
	return TimerView{Running: false}
}

// ViewOf projects a record to the wire view at now, applying lazy expiry.
func ViewOf(r *TimerRecord, now time.Time) TimerView {
	if !r.Current(now) {
		return NotRunning()
	}
	start := r.StartTime.UTC()
	ms := r.DurationMs()
	return TimerView{
		Running:   true,
		StartTime: &start,
		Duration:  &ms,
	}
}

// StartResult is returned by App.Start. Done receives exactly one value once
// the pre-countdown finishes: nil on commit, ErrCancelled if reset first, or
// an ErrStorageUnavailable-wrapped error if the commit failed. Done is nil
// when Outcome is OutcomeAlreadyRunning.
type StartResult struct {
	Outcome StartOutcome
	Done    <-chan error
}

// Snapshot is a point-in-time description of the state machine, for logs and stats.
type Snapshot struct {
	State     State        `json:"state"`
	Remaining int          `json:"pre_countdown_remaining,omitempty"`
	Record    *TimerRecord `json:"record,omitempty"`
}
