package countdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/countdown/go/internal/countdown/events"
	"github.com/mcdev12/countdown/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Notifier receives every signal the state machine emits. Implementations
// must not block: Notify is called while the state machine holds its lock.
type Notifier interface {
	Notify(sig events.Signal)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(sig events.Signal)

func (f NotifierFunc) Notify(sig events.Signal) { f(sig) }

// Config holds the timer parameters.
type Config struct {
	Duration         time.Duration // total countdown length
	PreCountdownFrom int           // first pre-countdown digit
	TickInterval     time.Duration // pre-countdown cadence
	StoreTimeout     time.Duration // bound on the commit write, which runs outside any request
}

// DefaultConfig returns the reference deployment's parameters.
func DefaultConfig() Config {
	return Config{
		Duration:         DefaultDuration,
		PreCountdownFrom: 5,
		TickInterval:     time.Second,
		StoreTimeout:     5 * time.Second,
	}
}

// Option configures an App.
type Option func(*App)

// WithClock replaces the real clock, typically with a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(a *App) {
		a.clock = clock
	}
}

// App is the timer state machine. All start/reset calls are serialized by mu,
// which also guards the pre-countdown session so a cancelled session can never
// emit again.
type App struct {
	repo     Repository
	notifier Notifier
	clock    clockwork.Clock
	cfg      Config

	mu      sync.Mutex
	state   State
	record  *TimerRecord  // set only in StateRunning
	session *preCountdown // set only in StatePreCountdown
}

// NewApp creates a new timer App in the Idle state. Call Recover before
// serving traffic to pick up a record left by a previous process.
func NewApp(repo Repository, notifier Notifier, cfg Config, opts ...Option) *App {
	defaults := DefaultConfig()
	if cfg.Duration <= 0 {
		cfg.Duration = defaults.Duration
	}
	if cfg.PreCountdownFrom <= 0 {
		cfg.PreCountdownFrom = defaults.PreCountdownFrom
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if notifier == nil {
		notifier = NotifierFunc(func(events.Signal) {})
	}

	a := &App{
		repo:     repo,
		notifier: notifier,
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *App) Config() Config {
	return a.cfg
}

// Recover loads the durable record and enters Running if it is still live.
func (a *App) Recover(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.repo.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			log.Warn().Err(err).Msg("ignoring malformed timer record on recovery")
			return nil
		}
		metrics.IncStoreError("get")
		return wrapUnavailable("recover timer", err)
	}

	now := a.clock.Now()
	if rec.Current(now) {
		a.state = StateRunning
		a.record = rec
		log.Info().
			Time("start_time", rec.StartTime).
			Dur("remaining", rec.Remaining(now)).
			Msg("recovered running timer")
		return nil
	}

	log.Info().Msg("no running timer to recover")
	return nil
}

// Start requests a new countdown. While a pre-countdown or a live countdown
// is in progress it returns OutcomeAlreadyRunning without side effects.
// Otherwise it emits preCountdown(n) immediately and schedules the rest of
// the sequence; StartResult.Done reports how it ended.
func (a *App) Start(ctx context.Context) (StartResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	switch a.state {
	case StatePreCountdown:
		return a.alreadyRunning(), nil
	case StateRunning:
		if a.record.Current(now) {
			return a.alreadyRunning(), nil
		}
		log.Info().Time("start_time", a.record.StartTime).Msg("running timer has expired, accepting new start")
	}

	// The store may hold a record this process has not seen (e.g. recovery failed at boot).
	rec, err := a.repo.GetCurrent(ctx)
	if err != nil && !errors.Is(err, ErrMalformedRecord) {
		metrics.IncStoreError("get")
		metrics.IncStart("error")
		return StartResult{}, wrapUnavailable("read timer", err)
	}
	if rec.Current(now) {
		a.state = StateRunning
		a.record = rec
		return a.alreadyRunning(), nil
	}

	s := newPreCountdown(a.cfg.PreCountdownFrom, a.clock.NewTicker(a.cfg.TickInterval))
	a.session = s
	a.state = StatePreCountdown
	a.record = nil

	metrics.IncStart("started")
	log.Info().
		Int("from", s.remaining).
		Dur("duration", a.cfg.Duration).
		Msg("pre-countdown started")

	a.notify(events.NewPreCountdown(s.remaining, now))
	go a.runPreCountdown(s)

	return StartResult{Outcome: OutcomeStarted, Done: s.done}, nil
}

func (a *App) alreadyRunning() StartResult {
	metrics.IncStart("already_running")
	log.Debug().Str("state", string(a.state)).Msg("start rejected, timer already running")
	return StartResult{Outcome: OutcomeAlreadyRunning}
}

// Reset cancels any pre-countdown, removes the durable record and returns to
// Idle. It succeeds from every state; only an unreachable store fails it.
func (a *App) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.state
	cancelled := a.session != nil
	if cancelled {
		a.cancelSession(ErrCancelled)
		metrics.IncCommit("cancelled")
		a.state = StateIdle
	}

	if err := a.repo.Clear(ctx); err != nil {
		metrics.IncStoreError("clear")
		// A cancelled pre-countdown never wrote a record, but a Running one is still durable.
		if a.record != nil {
			a.state = StateRunning
		}
		if cancelled {
			// Viewers are still showing a digit that will never advance.
			a.notify(events.NewSignal(events.SignalPreCountdownEnd, a.clock.Now()))
		}
		return wrapUnavailable("clear timer", err)
	}

	a.state = StateIdle
	a.record = nil

	metrics.IncReset()
	log.Info().Str("previous_state", string(prev)).Msg("timer reset")

	a.notify(events.NewSignal(events.SignalTimerReset, a.clock.Now()))
	return nil
}

// Current is the sync endpoint: the authoritative view computed from the
// store with lazy expiry. It never mutates state.
func (a *App) Current(ctx context.Context) (TimerView, error) {
	rec, err := a.repo.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			log.Warn().Err(err).Msg("malformed timer record, reporting not running")
			return NotRunning(), nil
		}
		metrics.IncStoreError("get")
		return TimerView{}, wrapUnavailable("read timer", err)
	}
	return ViewOf(rec, a.clock.Now()), nil
}

// Snapshot returns the in-memory state machine position.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{State: a.state}
	if a.session != nil {
		snap.Remaining = a.session.remaining
	}
	if a.record != nil {
		rec := *a.record
		snap.Record = &rec
	}
	return snap
}

// Close stops an in-flight pre-countdown without touching the store.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		a.cancelSession(ErrCancelled)
		a.state = StateIdle
	}
}

func (a *App) notify(sig events.Signal) {
	log.Debug().
		Str("signal", string(sig.Type)).
		Int("count", sig.Count).
		Msg("emitting signal")
	a.notifier.Notify(sig)
}
