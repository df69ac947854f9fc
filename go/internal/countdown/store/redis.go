package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/countdown/go/internal/countdown"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
	Key      string // key holding the timer document
}

// redisDocument mirrors the Mongo document shape so the stores are interchangeable.
type redisDocument struct {
	StartTime time.Time `json:"startTime"`
	Duration  int64     `json:"duration"`
	IsRunning bool      `json:"isRunning"`
}

// RedisStore keeps the timer as a JSON value under a single key. SET
// overwrites atomically, which gives replace semantics for free.
type RedisStore struct {
	client *redis.Client
	key    string
}

// OpenRedis connects and pings the server at cfg.Addr.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Key == "" {
		cfg.Key = "countdown:timer"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("key", cfg.Key).
		Msg("connected to Redis timer store")

	return &RedisStore{client: client, key: cfg.Key}, nil
}

func (s *RedisStore) GetCurrent(ctx context.Context) (*countdown.TimerRecord, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}

	var doc redisDocument
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", countdown.ErrMalformedRecord, err)
	}
	return newRecord(doc.StartTime, doc.Duration, doc.IsRunning)
}

func (s *RedisStore) Replace(ctx context.Context, r countdown.TimerRecord) error {
	data, err := json.Marshal(redisDocument{
		StartTime: r.StartTime.UTC(),
		Duration:  r.DurationMs(),
		IsRunning: r.IsRunning,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal timer: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to replace timer: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear timer: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
