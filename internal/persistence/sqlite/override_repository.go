package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

// UpsertOverride writes an override row, replacing any existing row for the
// same (series, date) key. At most one override exists per occurrence.
func (s *Store) UpsertOverride(ctx context.Context, override persistence.OccurrenceOverride) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return upsertOverrideTx(tx, override)
	})
}

// DeleteOverride removes the override row for a key. Missing rows are not an
// error: redundancy cleanup deletes blindly.
func (s *Store) DeleteOverride(ctx context.Context, seriesID, date string) error {
	_, err := s.pool.DB().ExecContext(ctx,
		"DELETE FROM occurrence_overrides WHERE series_id = ? AND date = ?", seriesID, date)
	return mapError(err)
}

// ListOverrides returns all override rows for the given series, ordered by
// series then date.
func (s *Store) ListOverrides(ctx context.Context, seriesIDs []string) ([]persistence.OccurrenceOverride, error) {
	if len(seriesIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT series_id, date, new_start, duration_minutes, note, created_at, updated_at
		 FROM occurrence_overrides
		 WHERE series_id IN (%s)
		 ORDER BY series_id ASC, date ASC`,
		placeholders(len(seriesIDs)),
	)

	rows, err := s.pool.DB().QueryContext(ctx, query, stringArgs(seriesIDs)...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []persistence.OccurrenceOverride
	for rows.Next() {
		var override persistence.OccurrenceOverride
		var newStart sql.NullString
		var duration sql.NullInt64
		var note sql.NullString
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&override.SeriesID,
			&override.Date,
			&newStart,
			&duration,
			&note,
			&createdAtStr,
			&updatedAtStr,
		)
		if err != nil {
			return nil, mapError(err)
		}

		if newStart.Valid {
			start, err := parseTime(newStart.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse new_start: %w", err)
			}
			override.NewStart = &start
		}
		if duration.Valid {
			minutes := int(duration.Int64)
			override.DurationMinutes = &minutes
		}
		if note.Valid {
			override.Note = &note.String
		}
		if override.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if override.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		result = append(result, override)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func upsertOverrideTx(tx *sql.Tx, override persistence.OccurrenceOverride) error {
	now := formatTime(time.Now().UTC())

	var newStart sql.NullString
	if override.NewStart != nil {
		newStart = sql.NullString{String: formatTime(*override.NewStart), Valid: true}
	}
	var duration sql.NullInt64
	if override.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*override.DurationMinutes), Valid: true}
	}

	_, err := tx.Exec(
		`INSERT INTO occurrence_overrides (series_id, date, new_start, duration_minutes, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(series_id, date) DO UPDATE SET
			new_start = excluded.new_start,
			duration_minutes = excluded.duration_minutes,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		override.SeriesID,
		override.Date,
		newStart,
		duration,
		nullString(override.Note),
		now,
		now,
	)
	return mapError(err)
}

func deleteOverrideTx(tx *sql.Tx, seriesID, date string) error {
	_, err := tx.Exec("DELETE FROM occurrence_overrides WHERE series_id = ? AND date = ?", seriesID, date)
	return mapError(err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
