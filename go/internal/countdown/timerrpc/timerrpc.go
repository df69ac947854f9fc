// Package timerrpc defines the countdown.v1.TimerService Connect API: its
// messages, JSON codec, handler constructor and client.
package timerrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
)

const (
	// TimerServiceName is the fully-qualified name of the TimerService service.
	TimerServiceName = "countdown.v1.TimerService"

	TimerServiceStartProcedure    = "/countdown.v1.TimerService/Start"
	TimerServiceResetProcedure    = "/countdown.v1.TimerService/Reset"
	TimerServiceGetTimerProcedure = "/countdown.v1.TimerService/GetTimer"
)

type StartRequest struct {
	// Wait blocks the call until the pre-countdown commits or fails.
	Wait bool `json:"wait,omitempty"`
}

type StartResponse struct {
	Message string `json:"message"`
}

type ResetRequest struct{}

type ResetResponse struct {
	Message string `json:"message"`
}

type GetTimerRequest struct{}

type GetTimerResponse struct {
	Running   bool       `json:"running"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
}

// JSONCodec marshals plain Go structs with encoding/json. It replaces
// Connect's default "json" codec, which only accepts protobuf messages.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// TimerServiceHandler is implemented by the server.
type TimerServiceHandler interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	Reset(context.Context, *connect.Request[ResetRequest]) (*connect.Response[ResetResponse], error)
	GetTimer(context.Context, *connect.Request[GetTimerRequest]) (*connect.Response[GetTimerResponse], error)
}

// NewTimerServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewTimerServiceHandler(svc TimerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	startHandler := connect.NewUnaryHandler(TimerServiceStartProcedure, svc.Start, opts...)
	resetHandler := connect.NewUnaryHandler(TimerServiceResetProcedure, svc.Reset, opts...)
	getTimerHandler := connect.NewUnaryHandler(
		TimerServiceGetTimerProcedure,
		svc.GetTimer,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...,
	)

	return "/" + TimerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TimerServiceStartProcedure:
			startHandler.ServeHTTP(w, r)
		case TimerServiceResetProcedure:
			resetHandler.ServeHTTP(w, r)
		case TimerServiceGetTimerProcedure:
			getTimerHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// TimerServiceClient is a client for the countdown.v1.TimerService service.
type TimerServiceClient interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	Reset(context.Context, *connect.Request[ResetRequest]) (*connect.Response[ResetResponse], error)
	GetTimer(context.Context, *connect.Request[GetTimerRequest]) (*connect.Response[GetTimerResponse], error)
}

// NewTimerServiceClient constructs a client for the service at baseURL
// (for example, http://localhost:5000).
func NewTimerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) TimerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)

	return &timerServiceClient{
		start:    connect.NewClient[StartRequest, StartResponse](httpClient, baseURL+TimerServiceStartProcedure, opts...),
		reset:    connect.NewClient[ResetRequest, ResetResponse](httpClient, baseURL+TimerServiceResetProcedure, opts...),
		getTimer: connect.NewClient[GetTimerRequest, GetTimerResponse](httpClient, baseURL+TimerServiceGetTimerProcedure, opts...),
	}
}

type timerServiceClient struct {
	start    *connect.Client[StartRequest, StartResponse]
	reset    *connect.Client[ResetRequest, ResetResponse]
	getTimer *connect.Client[GetTimerRequest, GetTimerResponse]
}

func (c *timerServiceClient) Start(ctx context.Context, req *connect.Request[StartRequest]) (*connect.Response[StartResponse], error) {
	return c.start.CallUnary(ctx, req)
}

func (c *timerServiceClient) Reset(ctx context.Context, req *connect.Request[ResetRequest]) (*connect.Response[ResetResponse], error) {
	return c.reset.CallUnary(ctx, req)
}

func (c *timerServiceClient) GetTimer(ctx context.Context, req *connect.Request[GetTimerRequest]) (*connect.Response[GetTimerResponse], error) {
	return c.getTimer.CallUnary(ctx, req)
}
