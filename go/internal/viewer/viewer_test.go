package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/countdown/go/internal/broadcast"
	"github.com/mcdev12/countdown/go/internal/countdown"
	"github.com/mcdev12/countdown/go/internal/countdown/events"
	"github.com/mcdev12/countdown/go/internal/countdown/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type frameRecorder struct {
	ch chan Frame
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{ch: make(chan Frame, 512)}
}

func (r *frameRecorder) render(f Frame) {
	select {
	case r.ch <- f:
	default:
	}
}

func (r *frameRecorder) waitFor(t *testing.T, desc string, match func(Frame) bool) Frame {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-r.ch:
			if match(f) {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", desc)
			return Frame{}
		}
	}
}

type stack struct {
	app         *countdown.App
	hub         *broadcast.Hub
	serverClock *clockwork.FakeClock
	srv         *httptest.Server
}

func startStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{serverClock: clockwork.NewFakeClockAt(t0)}
	s.hub = broadcast.NewHub(broadcast.DefaultConnectionConfig())
	s.app = countdown.NewApp(store.NewMemoryStore(), s.hub, countdown.DefaultConfig(), countdown.WithClock(s.serverClock))

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		s.hub.Run(ctx)
		close(hubDone)
	}()

	mux := http.NewServeMux()
	countdown.NewHandler(s.app).RegisterRoutes(mux)
	broadcast.NewWebSocketHandler(s.hub).RegisterRoutes(mux)
	s.srv = httptest.NewServer(mux)

	t.Cleanup(func() {
		s.app.Close()
		cancel()
		<-hubDone
		s.srv.Close()
	})
	return s
}

func runViewer(t *testing.T, v *Viewer, rec *frameRecorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx, rec.render) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(3 * time.Second):
			t.Error("viewer did not stop")
		}
	})
}

func TestViewer_FollowsServerLifecycle(t *testing.T) {
	s := startStack(t)
	viewerClock := clockwork.NewFakeClockAt(t0)
	v := New(Config{BaseURL: s.srv.URL, Clock: viewerClock, HTTPClient: s.srv.Client()})
	rec := newFrameRecorder()
	runViewer(t, v, rec)

	rec.waitFor(t, "idle frame", func(f Frame) bool { return f.Phase == PhaseIdle })
	require.Eventually(t, func() bool { return s.hub.Stats().TotalConnections == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := s.app.Start(context.Background())
	require.NoError(t, err)

	for n := 5; n >= 1; n-- {
		n := n
		rec.waitFor(t, "pre-countdown digit", func(f Frame) bool {
			return f.Phase == PhasePreCountdown && f.PreCount == n
		})
		s.serverClock.Advance(time.Second)
	}

	running := rec.waitFor(t, "running frame", func(f Frame) bool { return f.Phase == PhaseRunning })
	assert.False(t, running.Urgent)

	state := v.State()
	assert.True(t, state.Running)
	assert.True(t, state.StartTime.Equal(t0.Add(5*time.Second)))
	assert.Equal(t, 24*time.Hour, state.Duration)

	// Local refresh projects from the pulled pair without asking the server.
	viewerClock.Advance(5*time.Second + time.Hour)
	rec.waitFor(t, "refreshed frame", func(f Frame) bool {
		return f.Phase == PhaseRunning && f.Clock == "23:00:00"
	})

	require.NoError(t, s.app.Reset(context.Background()))
	rec.waitFor(t, "idle after reset", func(f Frame) bool { return f.Phase == PhaseIdle })
	assert.False(t, v.State().Running)
}

func TestViewer_ReconnectRepulls(t *testing.T) {
	var (
		pulls    atomic.Int32
		sessions atomic.Int32
	)
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /timer", func(w http.ResponseWriter, r *http.Request) {
		pulls.Add(1)
		_ = json.NewEncoder(w).Encode(countdown.NotRunning())
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sessions.Add(1)
		// Drop every viewer straight away.
		conn.Close()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	v := New(Config{BaseURL: srv.URL, Clock: clock, HTTPClient: srv.Client(), ReconnectWait: time.Second})
	rec := newFrameRecorder()
	runViewer(t, v, rec)

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return sessions.Load() >= 3 && pulls.Load() >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestViewer_ApplyTrustsOnlyPreCountdownDigit(t *testing.T) {
	start := t0.Add(-time.Minute)
	duration := int64(time.Hour / time.Millisecond)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /timer", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(countdown.TimerView{Running: true, StartTime: &start, Duration: &duration})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	v := New(Config{BaseURL: srv.URL, Clock: clockwork.NewFakeClockAt(t0), HTTPClient: srv.Client()})
	ctx := context.Background()

	v.Apply(ctx, events.NewPreCountdown(3, t0))
	assert.Equal(t, 3, v.State().PreCount)
	assert.False(t, v.State().Running, "a digit does not trigger a pull")

	// A running record ends the pre-countdown even if preCountdownEnd was missed.
	v.Apply(ctx, events.NewSignal(events.SignalTimerStarted, t0))
	state := v.State()
	assert.True(t, state.Running)
	assert.Zero(t, state.PreCount)
	assert.True(t, state.StartTime.Equal(start))
	assert.Equal(t, time.Hour, state.Duration)

	f := v.Frame()
	assert.Equal(t, PhaseRunning, f.Phase)
	assert.Equal(t, "00:59:00", f.Clock)

	v.Apply(ctx, events.NewSignal(events.SignalPreCountdownEnd, t0))
	assert.Equal(t, PhaseRunning, v.Frame().Phase)
}

func TestViewer_SyncDropsStaleDigit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /timer", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(countdown.NotRunning())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	v := New(Config{BaseURL: srv.URL, Clock: clockwork.NewFakeClockAt(t0), HTTPClient: srv.Client()})
	ctx := context.Background()

	v.Apply(ctx, events.NewPreCountdown(3, t0))
	require.Equal(t, PhasePreCountdown, v.Frame().Phase)

	require.NoError(t, v.Sync(ctx))
	f := v.Frame()
	assert.Equal(t, PhaseIdle, f.Phase)
	assert.Zero(t, f.PreCount)
}

func TestViewer_ReconnectDropsStaleDigit(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	// The pull fails, so only the reconnect itself can clear the digit.
	mux.HandleFunc("GET /timer", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"storage unavailable"}`, http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	v := New(Config{BaseURL: srv.URL, Clock: clockwork.NewFakeClockAt(t0), HTTPClient: srv.Client()})
	// Left over from a connection that dropped mid pre-countdown.
	v.state = State{PreCount: 2}

	rec := newFrameRecorder()
	runViewer(t, v, rec)

	f := rec.waitFor(t, "first frame", func(Frame) bool { return true })
	assert.Equal(t, PhaseIdle, f.Phase)
	assert.Zero(t, f.PreCount)
}

func TestViewer_SyncFailureKeepsState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /timer", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"storage unavailable"}`, http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	v := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	v.state = State{Running: true, StartTime: t0, Duration: time.Hour}

	assert.Error(t, v.Sync(context.Background()))
	assert.True(t, v.State().Running)
}

func TestWebsocketURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:5000":      "ws://localhost:5000/ws",
		"https://timer.example/":     "wss://timer.example/ws",
		"https://timer.example/app/": "wss://timer.example/app/ws",
		"ws://localhost:5000":        "ws://localhost:5000/ws",
	} {
		got, err := websocketURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := websocketURL("ftp://nope")
	assert.Error(t, err)
}
