package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/mcdev12/countdown/go/internal/config"
	"github.com/mcdev12/countdown/go/internal/countdown/timerrpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, cfg.Server, services)
	setupHealthCheck(mux, services)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := c.Handler(mux)

	// No WriteTimeout: /ws connections and ?wait=true starts are long-lived.
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, cfg config.ServerConfig, services *Services) {
	var admin []func(http.Handler) http.Handler
	if cfg.AdminRateLimit > 0 {
		admin = append(admin, adminRateLimit(cfg.AdminRateLimit, cfg.AdminRateWindow))
	}

	// Plain HTTP API used by browsers
	services.HTTP.RegisterRoutes(mux, admin...)

	// Connect service for admin tooling
	timerServicePath, timerServiceHandler := timerrpc.NewTimerServiceHandler(services.Timer)
	var rpc http.Handler = timerServiceHandler
	for i := len(admin) - 1; i >= 0; i-- {
		rpc = admin[i](rpc)
	}
	mux.Handle(timerServicePath, rpc)

	// Viewer push channel
	services.Sockets.RegisterRoutes(mux)
}

// adminRateLimit limits mutating requests per client IP.
func adminRateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.Warn().Str("remote_addr", r.RemoteAddr).Str("path", r.URL.Path).Msg("admin rate limit exceeded")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
		}),
	)
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	mux.Handle("GET /ready", newReadinessChecker(services))
}
