package countdown

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/countdown/go/internal/countdown/timerrpc"
	"github.com/rs/zerolog/log"
)

// ResetMessage is the acknowledgement returned by a successful reset.
const ResetMessage = "Timer Reset"

// TimerApp defines what the transport layers need from the state machine
type TimerApp interface {
	Start(ctx context.Context) (StartResult, error)
	Reset(ctx context.Context) error
	Current(ctx context.Context) (TimerView, error)
}

var _ TimerApp = (*App)(nil)

// Service implements the TimerService Connect interface
type Service struct {
	app TimerApp
}

// NewService creates a new timer Connect service
func NewService(app TimerApp) *Service {
	return &Service{app: app}
}

var _ timerrpc.TimerServiceHandler = (*Service)(nil)

// Start requests a new countdown
func (s *Service) Start(ctx context.Context, req *connect.Request[timerrpc.StartRequest]) (*connect.Response[timerrpc.StartResponse], error) {
	res, err := s.app.Start(ctx)
	if err != nil {
		return nil, connectError(err)
	}

	if req.Msg.Wait {
		if err := awaitCommit(ctx, res); err != nil {
			return nil, connectError(err)
		}
	}

	return connect.NewResponse(&timerrpc.StartResponse{Message: string(res.Outcome)}), nil
}

// Reset cancels any countdown and clears the record
func (s *Service) Reset(ctx context.Context, req *connect.Request[timerrpc.ResetRequest]) (*connect.Response[timerrpc.ResetResponse], error) {
	if err := s.app.Reset(ctx); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&timerrpc.ResetResponse{Message: ResetMessage}), nil
}

// GetTimer returns the authoritative timer view
func (s *Service) GetTimer(ctx context.Context, req *connect.Request[timerrpc.GetTimerRequest]) (*connect.Response[timerrpc.GetTimerResponse], error) {
	view, err := s.app.Current(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&timerrpc.GetTimerResponse{
		Running:   view.Running,
		StartTime: view.StartTime,
		Duration:  view.Duration,
	}), nil
}

// awaitCommit blocks until an accepted start finishes. A rejected start has
// nothing to wait for. A caller that gives up early is not an error: the
// pre-countdown carries on without it.
func awaitCommit(ctx context.Context, res StartResult) error {
	if res.Done == nil {
		return nil
	}
	select {
	case err := <-res.Done:
		return err
	case <-ctx.Done():
		return nil
	}
}

func connectError(err error) *connect.Error {
	switch {
	case errors.Is(err, ErrStorageUnavailable):
		log.Error().Err(err).Msg("timer store unavailable")
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, ErrCancelled):
		return connect.NewError(connect.CodeAborted, err)
	default:
		log.Error().Err(err).Msg("timer request failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
