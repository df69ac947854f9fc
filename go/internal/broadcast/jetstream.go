package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/countdown/go/internal/countdown/events"
	"github.com/mcdev12/countdown/go/internal/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep signals
	Replicas        int
	DuplicateWindow time.Duration
	PublishTimeout  time.Duration
	QueueSize       int
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "COUNTDOWN_SIGNALS",
		SubjectPrefix:   "countdown.signals",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		PublishTimeout:  5 * time.Second,
		QueueSize:       256,
	}
}

// JetStreamMirror republishes every signal to a JetStream subject
// (<prefix>.<type>) for consumers outside this process. Publishing happens on
// its own goroutine so a slow NATS server never stalls the state machine.
type JetStreamMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
	queue  chan events.Signal
}

func NewJetStreamMirror(ctx context.Context, cfg JetStreamConfig) (*JetStreamMirror, error) {
	defaults := DefaultJetStreamConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}

	opts := []nats.Option{
		nats.Name("countdown-signal-mirror"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	m := &JetStreamMirror{
		nc:     nc,
		js:     js,
		config: cfg,
		queue:  make(chan events.Signal, cfg.QueueSize),
	}

	if err := m.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return m, nil
}

func (m *JetStreamMirror) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        m.config.StreamName,
		Description: "Countdown timer signals",
		Subjects:    []string{fmt.Sprintf("%s.>", m.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    m.config.Replicas,
		Duplicates:  m.config.DuplicateWindow,
	}

	if _, err := m.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().
		Str("stream", m.config.StreamName).
		Str("subjects", sc.Subjects[0]).
		Msg("JetStream stream ready")
	return nil
}

// Notify queues sig for publishing. It never blocks.
func (m *JetStreamMirror) Notify(sig events.Signal) {
	select {
	case m.queue <- sig:
	default:
		metrics.IncSignalDropped("jetstream", "queue_full")
		log.Warn().Str("signal", string(sig.Type)).Msg("JetStream mirror queue full, dropping signal")
	}
}

// Run publishes queued signals until ctx is cancelled.
func (m *JetStreamMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-m.queue:
			if err := m.publish(ctx, sig); err != nil {
				metrics.IncSignalDropped("jetstream", "publish_failed")
				log.Error().Err(err).Str("signal", string(sig.Type)).Msg("failed to mirror signal")
			}
		}
	}
}

func (m *JetStreamMirror) publish(ctx context.Context, sig events.Signal) error {
	subject := fmt.Sprintf("%s.%s", m.config.SubjectPrefix, sig.Type)

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.PublishTimeout)
	defer cancel()

	ack, err := m.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Signal-Type": []string{string(sig.Type)},
			"Signal-ID":   []string{sig.ID},
		},
	},
		jetstream.WithMsgID(sig.ID),
		jetstream.WithExpectStream(m.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("signal_id", sig.ID).
		Uint64("sequence", ack.Sequence).
		Msg("mirrored signal to JetStream")
	return nil
}

// IsConnected reports whether the NATS connection is currently up.
func (m *JetStreamMirror) IsConnected() bool {
	return m.nc != nil && m.nc.IsConnected()
}

func (m *JetStreamMirror) Close() error {
	if m.nc != nil {
		return m.nc.Drain()
	}
	return nil
}
