package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Repository is the local trigger history, kept in a single sqlite file.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	repo := &Repository{db: db, logger: logger}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS trigger_history (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			automation_id TEXT NOT NULL,
			automation_name TEXT NOT NULL,
			device_name TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			error_kind TEXT,
			triggered_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_history_triggered_at ON trigger_history(triggered_at);`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_history_instance ON trigger_history(instance_id);`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// timeLayout has a fixed-width fraction so stored values sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func formatTime(v time.Time) string {
	return v.UTC().Format(timeLayout)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
