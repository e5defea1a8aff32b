package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one ordered schema change. Versions are applied exactly once,
// recorded in schema_migrations.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS lesson_series (
				id TEXT PRIMARY KEY,
				student_id TEXT NOT NULL,
				anchor TEXT NOT NULL,
				duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
				recurrence_rule TEXT,
				default_note TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_lesson_series_student ON lesson_series(student_id)`,
			`CREATE INDEX IF NOT EXISTS idx_lesson_series_anchor ON lesson_series(anchor)`,
			`CREATE TABLE IF NOT EXISTS occurrence_overrides (
				series_id TEXT NOT NULL REFERENCES lesson_series(id) ON DELETE CASCADE,
				date TEXT NOT NULL,
				new_start TEXT,
				duration_minutes INTEGER,
				note TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (series_id, date)
			)`,
			`CREATE TABLE IF NOT EXISTS occurrence_notes (
				series_id TEXT NOT NULL REFERENCES lesson_series(id) ON DELETE CASCADE,
				date TEXT NOT NULL,
				text TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (series_id, date)
			)`,
			`CREATE TABLE IF NOT EXISTS payment_links (
				series_id TEXT NOT NULL REFERENCES lesson_series(id) ON DELETE CASCADE,
				date TEXT NOT NULL,
				payment_id TEXT NOT NULL,
				amount_cents INTEGER NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (series_id, date, payment_id)
			)`,
		},
	},
}

// Migrate brings the schema up to the latest version. It is safe to call on
// every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.DB().ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.migrationApplied(ctx, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		err = s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d failed: %w", m.version, err)
				}
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.version, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) migrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := s.pool.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return count > 0, nil
}
