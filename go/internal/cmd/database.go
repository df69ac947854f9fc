package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/countdown/go/internal/config"
	"github.com/mcdev12/countdown/go/internal/countdown"
	"github.com/mcdev12/countdown/go/internal/countdown/store"
	"github.com/rs/zerolog/log"
)

// setupStore opens the configured timer store. The returned func releases it.
func setupStore(ctx context.Context, cfg config.StoreConfig) (countdown.Repository, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory timer store, the timer will not survive a restart")
		return store.NewMemoryStore(), func() {}, nil

	case config.DriverSQLite:
		s, err := store.OpenSQLite(ctx, store.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
			MaxOpenConns: store.DefaultSQLiteConfig().MaxOpenConns,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("connected to sqlite timer store")
		return s, func() { _ = s.Close() }, nil

	case config.DriverPostgres:
		s, err := store.OpenPostgres(ctx, cfg.Postgres.DSN(), cfg.Postgres.Table)
		if err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("host", cfg.Postgres.Host).
			Int("port", cfg.Postgres.Port).
			Str("database", cfg.Postgres.Database).
			Msg("connected to postgres timer store")
		return s, s.Close, nil

	case config.DriverMongo:
		s, err := store.OpenMongo(ctx, store.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("database", cfg.Mongo.Database).
			Str("collection", cfg.Mongo.Collection).
			Msg("connected to mongodb timer store")
		return s, func() { _ = s.Close(context.Background()) }, nil

	case config.DriverRedis:
		s, err := store.OpenRedis(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
