package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/countdown/go/internal/countdown"
	_ "modernc.org/sqlite" // Pure Go driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS countdown_timer (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	start_time  TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL,
	is_running  INTEGER NOT NULL
)`

// SQLiteConfig defines SQLite operational parameters.
type SQLiteConfig struct {
	Path         string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultSQLiteConfig returns the configuration used when none is given.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:         "countdown.db",
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// SQLiteStore persists the timer in a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at cfg.Path with WAL and
// busy_timeout applied to every pooled connection.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetCurrent(ctx context.Context) (*countdown.TimerRecord, error) {
	var (
		startTime  string
		durationMs int64
		isRunning  bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT start_time, duration_ms, is_running FROM countdown_timer WHERE id = 1`,
	).Scan(&startTime, &durationMs, &isRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}

	return decodeRow(startTime, durationMs, isRunning)
}

func (s *SQLiteStore) Replace(ctx context.Context, r countdown.TimerRecord) error {
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM countdown_timer`); err != nil {
			return fmt.Errorf("failed to retire timer: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO countdown_timer (id, start_time, duration_ms, is_running) VALUES (1, ?, ?, ?)`,
			r.StartTime.UTC().Format(time.RFC3339Nano), r.DurationMs(), r.IsRunning,
		); err != nil {
			return fmt.Errorf("failed to insert timer: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM countdown_timer`); err != nil {
		return fmt.Errorf("failed to clear timer: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runTx executes fn inside a *sql.Tx.
// If fn returns an error the tx rolls back, else it commits.
func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// decodeRow validates a stored row. Anything that cannot describe a timer
// is reported as ErrMalformedRecord.
func decodeRow(startTime string, durationMs int64, isRunning bool) (*countdown.TimerRecord, error) {
	start, err := time.Parse(time.RFC3339Nano, startTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start time %q: %v", countdown.ErrMalformedRecord, startTime, err)
	}
	return newRecord(start, durationMs, isRunning)
}

func newRecord(start time.Time, durationMs int64, isRunning bool) (*countdown.TimerRecord, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("%w: missing start time", countdown.ErrMalformedRecord)
	}
	if durationMs <= 0 {
		return nil, fmt.Errorf("%w: duration %d", countdown.ErrMalformedRecord, durationMs)
	}
	return &countdown.TimerRecord{
		StartTime: start,
		Duration:  time.Duration(durationMs) * time.Millisecond,
		IsRunning: isRunning,
	}, nil
}
