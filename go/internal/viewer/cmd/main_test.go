package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/countdown/go/internal/countdown/timerrpc"
	"github.com/mcdev12/countdown/go/internal/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimerService struct {
	running bool
	start   time.Time
	down    bool
	waited  bool
}

func (f *fakeTimerService) Start(ctx context.Context, req *connect.Request[timerrpc.StartRequest]) (*connect.Response[timerrpc.StartResponse], error) {
	if f.down {
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("storage unavailable"))
	}
	f.waited = req.Msg.Wait
	if f.running {
		return connect.NewResponse(&timerrpc.StartResponse{Message: "Already Running"}), nil
	}
	f.running = true
	f.start = time.Now().Add(-time.Hour)
	return connect.NewResponse(&timerrpc.StartResponse{Message: "Countdown Started"}), nil
}

func (f *fakeTimerService) Reset(ctx context.Context, req *connect.Request[timerrpc.ResetRequest]) (*connect.Response[timerrpc.ResetResponse], error) {
	f.running = false
	return connect.NewResponse(&timerrpc.ResetResponse{Message: "Timer Reset"}), nil
}

func (f *fakeTimerService) GetTimer(ctx context.Context, req *connect.Request[timerrpc.GetTimerRequest]) (*connect.Response[timerrpc.GetTimerResponse], error) {
	if !f.running {
		return connect.NewResponse(&timerrpc.GetTimerResponse{}), nil
	}
	start := f.start
	duration := int64(24 * time.Hour / time.Millisecond)
	return connect.NewResponse(&timerrpc.GetTimerResponse{Running: true, StartTime: &start, Duration: &duration}), nil
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newFakeServer(t *testing.T, svc *fakeTimerService) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(timerrpc.NewTimerServiceHandler(svc))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCommands(t *testing.T) {
	svc := &fakeTimerService{}
	srv := newFakeServer(t, svc)

	out, err := run(t, srv, "status")
	require.NoError(t, err)
	assert.Equal(t, "not running\n", out)

	out, err = run(t, srv, "start", "--wait")
	require.NoError(t, err)
	assert.Equal(t, "Countdown Started\n", out)
	assert.True(t, svc.waited)

	out, err = run(t, srv, "start")
	require.NoError(t, err)
	assert.Equal(t, "Already Running\n", out)

	out, err = run(t, srv, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "running: 22:59:")

	out, err = run(t, srv, "reset")
	require.NoError(t, err)
	assert.Equal(t, "Timer Reset\n", out)
}

func TestStartUnavailable(t *testing.T) {
	srv := newFakeServer(t, &fakeTimerService{down: true})

	_, err := run(t, srv, "start")
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestRenderFrame(t *testing.T) {
	assert.Equal(t, "waiting for start", renderFrame(viewer.Frame{Phase: viewer.PhaseIdle}))
	assert.Equal(t, "starting in 3...", renderFrame(viewer.Frame{Phase: viewer.PhasePreCountdown, PreCount: 3}))
	assert.Equal(t, "01:02:03", renderFrame(viewer.Frame{Phase: viewer.PhaseRunning, Clock: "01:02:03"}))
	assert.Equal(t, "00:00:12  !!", renderFrame(viewer.Frame{Phase: viewer.PhaseRunning, Clock: "00:00:12", Urgent: true}))
	assert.Equal(t, "TIME UP", renderFrame(viewer.Frame{Phase: viewer.PhaseTimeUp}))
}
