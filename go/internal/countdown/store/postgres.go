package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/mcdev12/countdown/go/internal/countdown"
)

// PostgresStore persists the timer in a single-row Postgres table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string // quoted identifier
}

// OpenPostgres connects to dsn and creates the timer table if needed.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = "countdown_timer"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, table: pq.QuoteIdentifier(table)}
	if _, err := pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          SMALLINT    PRIMARY KEY CHECK (id = 1),
			start_time  TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT      NOT NULL,
			is_running  BOOLEAN     NOT NULL
		)`, s.table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create timer table: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) GetCurrent(ctx context.Context) (*countdown.TimerRecord, error) {
	var (
		startTime  time.Time
		durationMs int64
		isRunning  bool
	)
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT start_time, duration_ms, is_running FROM %s WHERE id = 1`, s.table),
	).Scan(&startTime, &durationMs, &isRunning)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}

	return newRecord(startTime, durationMs, isRunning)
}

func (s *PostgresStore) Replace(ctx context.Context, r countdown.TimerRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
			return fmt.Errorf("failed to retire timer: %w", err)
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, start_time, duration_ms, is_running) VALUES (1, $1, $2, $3)`, s.table),
			r.StartTime.UTC(), r.DurationMs(), r.IsRunning,
		); err != nil {
			return fmt.Errorf("failed to insert timer: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("failed to clear timer: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
