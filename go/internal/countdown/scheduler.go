package countdown

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/countdown/go/internal/countdown/events"
	"github.com/mcdev12/countdown/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// preCountdown is the handle for one accepted start. It is owned by App and
// only touched under App.mu.
type preCountdown struct {
	remaining int
	ticker    clockwork.Ticker
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan error
	doneOnce  sync.Once
}

func newPreCountdown(from int, ticker clockwork.Ticker) *preCountdown {
	return &preCountdown{
		remaining: from,
		ticker:    ticker,
		stop:      make(chan struct{}),
		done:      make(chan error, 1),
	}
}

// cancel stops the ticker and releases the goroutine waiting on it.
func (s *preCountdown) cancel() {
	s.stopOnce.Do(func() {
		stopAndDrainTicker(s.ticker)
		close(s.stop)
	})
}

func (s *preCountdown) finish(err error) {
	s.doneOnce.Do(func() {
		s.done <- err
	})
}

// stopAndDrainTicker stops a ticker and drops a tick that may already be buffered.
func stopAndDrainTicker(t clockwork.Ticker) {
	t.Stop()
	select {
	case <-t.Chan():
	default:
	}
}

// cancelSession ends the current session. Caller holds a.mu.
func (a *App) cancelSession(reason error) {
	s := a.session
	a.session = nil
	s.cancel()
	s.finish(reason)
	log.Info().Int("remaining", s.remaining).Err(reason).Msg("pre-countdown cancelled")
}

// runPreCountdown waits on the session ticker until the session commits or is cancelled.
func (a *App) runPreCountdown(s *preCountdown) {
	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.Chan():
			if a.advance(s) {
				return
			}
		}
	}
}

// advance handles one tick and reports whether the session is over.
func (a *App) advance(s *preCountdown) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	// A reset may have won the lock while this tick was in flight.
	if a.session != s {
		log.Debug().Msg("discarding tick from cancelled pre-countdown")
		return true
	}

	s.remaining--
	now := a.clock.Now()
	if s.remaining > 0 {
		a.notify(events.NewPreCountdown(s.remaining, now))
		return false
	}

	a.session = nil
	s.cancel()
	a.notify(events.NewSignal(events.SignalPreCountdownEnd, now))

	rec := TimerRecord{
		StartTime: now,
		Duration:  a.cfg.Duration,
		IsRunning: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.StoreTimeout)
	defer cancel()

	if err := a.repo.Replace(ctx, rec); err != nil {
		a.state = StateIdle
		a.record = nil
		metrics.IncStoreError("replace")
		metrics.IncCommit("failed")
		log.Error().Err(err).Msg("failed to commit running timer, returning to idle")
		s.finish(wrapUnavailable("commit timer", err))
		return true
	}

	a.state = StateRunning
	a.record = &rec
	metrics.IncCommit("committed")
	log.Info().
		Time("start_time", rec.StartTime).
		Time("deadline", rec.Deadline()).
		Msg("countdown running")

	a.notify(events.NewSignal(events.SignalTimerStarted, now))
	s.finish(nil)
	return true
}
