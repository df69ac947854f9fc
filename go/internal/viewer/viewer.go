package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/countdown/go/internal/countdown"
	"github.com/mcdev12/countdown/go/internal/countdown/events"
	"github.com/rs/zerolog/log"
)

// Config holds viewer settings.
type Config struct {
	BaseURL       string        // e.g. http://localhost:5000
	RefreshEvery  time.Duration // local render cadence
	ReconnectWait time.Duration
	HTTPClient    *http.Client
	Clock         clockwork.Clock
}

// Viewer keeps a local timer state converged with the server: it subscribes
// to push signals, re-pulls the authoritative state on every resync signal
// and on every (re)connect, and renders locally in between.
type Viewer struct {
	baseURL       string
	refreshEvery  time.Duration
	reconnectWait time.Duration
	httpClient    *http.Client
	dialer        *websocket.Dialer
	clock         clockwork.Clock

	mu    sync.Mutex
	state State
}

func New(cfg Config) *Viewer {
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Viewer{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		refreshEvery:  cfg.RefreshEvery,
		reconnectWait: cfg.ReconnectWait,
		httpClient:    cfg.HTTPClient,
		dialer:        websocket.DefaultDialer,
		clock:         cfg.Clock,
	}
}

// State returns the current local state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Frame projects the local state at the viewer clock's now.
func (v *Viewer) Frame() Frame {
	return Project(v.State(), v.clock.Now())
}

// Fetch pulls the authoritative timer view.
func (v *Viewer) Fetch(ctx context.Context) (countdown.TimerView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/timer", nil)
	if err != nil {
		return countdown.TimerView{}, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return countdown.TimerView{}, fmt.Errorf("fetch timer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return countdown.TimerView{}, fmt.Errorf("fetch timer: unexpected status %d", resp.StatusCode)
	}

	var view countdown.TimerView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return countdown.TimerView{}, fmt.Errorf("decode timer: %w", err)
	}
	return view, nil
}

// Sync replaces the local timer with the server's. On failure the local
// state is left as it was. A successful pull also drops any pre-countdown
// digit: the next preCountdown signal restores it if one is still in flight.
func (v *Viewer) Sync(ctx context.Context) error {
	view, err := v.Fetch(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.state.PreCount = 0
	v.state.Running = view.Running && view.StartTime != nil && view.Duration != nil
	if v.state.Running {
		v.state.StartTime = *view.StartTime
		v.state.Duration = time.Duration(*view.Duration) * time.Millisecond
	} else {
		v.state.StartTime = time.Time{}
		v.state.Duration = 0
	}
	return nil
}

// Apply folds a push signal into the local state. Only the pre-countdown
// digit is taken from the signal; everything else comes from a re-pull.
func (v *Viewer) Apply(ctx context.Context, sig events.Signal) {
	v.mu.Lock()
	switch sig.Type {
	case events.SignalPreCountdown:
		v.state.PreCount = sig.Count
	case events.SignalPreCountdownEnd:
		v.state.PreCount = 0
	case events.SignalTimerReset:
		v.state = State{}
	}
	v.mu.Unlock()

	if sig.TriggersResync() {
		if err := v.Sync(ctx); err != nil {
			log.Warn().Err(err).Str("signal", string(sig.Type)).Msg("resync failed")
		}
	}
}

// Run keeps the viewer connected until ctx is cancelled, calling render on
// every signal and every local refresh.
func (v *Viewer) Run(ctx context.Context, render func(Frame)) error {
	for {
		err := v.session(ctx, render)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("retry_in", v.reconnectWait).Msg("viewer connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.clock.After(v.reconnectWait):
		}
	}
}

func (v *Viewer) session(ctx context.Context, render func(Frame)) error {
	wsURL, err := websocketURL(v.baseURL)
	if err != nil {
		return err
	}

	conn, resp, err := v.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	// Signals missed while disconnected are gone; forget the digit they would have ended.
	v.mu.Lock()
	v.state.PreCount = 0
	v.mu.Unlock()

	// Subscribe first, then pull, so nothing between the two is missed.
	if err := v.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("initial sync failed")
	}
	render(v.Frame())

	done := make(chan struct{})
	defer close(done)
	signals := make(chan events.Signal, 16)
	readErr := make(chan error, 1)
	go readSignals(conn, signals, readErr, done)

	ticker := v.clock.NewTicker(v.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-readErr:
			return err
		case sig := <-signals:
			v.Apply(ctx, sig)
			render(v.Frame())
		case <-ticker.Chan():
			render(v.Frame())
		}
	}
}

func readSignals(conn *websocket.Conn, out chan<- events.Signal, errc chan<- error, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}

		var sig events.Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			log.Warn().Err(err).Msg("ignoring undecodable signal")
			continue
		}

		select {
		case out <- sig:
		case <-done:
			return
		}
	}
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("server url must be http(s) or ws(s)")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
