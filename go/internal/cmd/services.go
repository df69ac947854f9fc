package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/countdown/go/internal/broadcast"
	"github.com/mcdev12/countdown/go/internal/config"
	"github.com/mcdev12/countdown/go/internal/countdown"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Repo    countdown.Repository
	App     *countdown.App
	Hub     *broadcast.Hub
	Mirror  *broadcast.JetStreamMirror // nil unless NATS is configured
	Timer   *countdown.Service
	HTTP    *countdown.Handler
	Sockets *broadcast.WebSocketHandler
}

func setupServices(ctx context.Context, cfg *config.Config, repo countdown.Repository) (*Services, error) {
	// Store → hub (+ mirror) → state machine → transports
	hub := broadcast.NewHub(broadcast.DefaultConnectionConfig())
	sinks := broadcast.Fanout{hub}

	var mirror *broadcast.JetStreamMirror
	if cfg.NATS.URL != "" {
		jsCfg := broadcast.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.Stream
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		m, err := broadcast.NewJetStreamMirror(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create signal mirror: %w", err)
		}
		mirror = m
		sinks = append(sinks, mirror)
		log.Info().Str("url", cfg.NATS.URL).Str("stream", jsCfg.StreamName).Msg("mirroring signals to JetStream")
	}

	app := countdown.NewApp(repo, sinks, countdown.Config{
		Duration:         cfg.Timer.Duration,
		PreCountdownFrom: cfg.Timer.PreCountdownFrom,
		TickInterval:     cfg.Timer.TickInterval,
		StoreTimeout:     cfg.Timer.StoreTimeout,
	})

	return &Services{
		Repo:    repo,
		App:     app,
		Hub:     hub,
		Mirror:  mirror,
		Timer:   countdown.NewService(app),
		HTTP:    countdown.NewHandler(app),
		Sockets: broadcast.NewWebSocketHandler(hub),
	}, nil
}

// Run starts the background loops. They stop when ctx is cancelled.
func (s *Services) Run(ctx context.Context) {
	go s.Hub.Run(ctx)
	if s.Mirror != nil {
		go s.Mirror.Run(ctx)
	}
}

// Close stops the pre-countdown and releases the mirror connection.
func (s *Services) Close() {
	s.App.Close()
	if s.Mirror != nil {
		if err := s.Mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close signal mirror")
		}
	}
}
