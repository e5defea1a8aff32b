package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

const seriesColumns = "id, student_id, anchor, duration_minutes, recurrence_rule, default_note, created_at, updated_at"

// CreateSeries inserts a new lesson series row.
func (s *Store) CreateSeries(ctx context.Context, series persistence.LessonSeries) error {
	if series.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	series.CreatedAt = now
	series.UpdatedAt = now

	_, err := s.pool.DB().ExecContext(ctx,
		"INSERT INTO lesson_series ("+seriesColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		seriesArgs(series)...,
	)
	return mapError(err)
}

// UpdateSeries replaces an existing series row.
func (s *Store) UpdateSeries(ctx context.Context, series persistence.LessonSeries) error {
	if series.ID == "" {
		return persistence.ErrNotFound
	}

	result, err := s.pool.DB().ExecContext(ctx,
		`UPDATE lesson_series
		 SET student_id = ?, anchor = ?, duration_minutes = ?, recurrence_rule = ?, default_note = ?, updated_at = ?
		 WHERE id = ?`,
		series.StudentID,
		formatTime(series.Anchor),
		series.DurationMinutes,
		nullString(series.RecurrenceRule),
		nullString(series.DefaultNote),
		formatTime(time.Now().UTC()),
		series.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

// GetSeries retrieves one series by ID.
func (s *Store) GetSeries(ctx context.Context, id string) (persistence.LessonSeries, error) {
	if id == "" {
		return persistence.LessonSeries{}, persistence.ErrNotFound
	}

	row := s.pool.DB().QueryRowContext(ctx,
		"SELECT "+seriesColumns+" FROM lesson_series WHERE id = ?", id)

	series, err := scanSeries(row.Scan)
	if err != nil {
		return persistence.LessonSeries{}, mapError(err)
	}
	return series, nil
}

// ListSeries lists series matching the filter, ordered by anchor then ID.
// Recurring series always match a window filter: their anchor may lie before
// the window while later occurrences fall inside it.
func (s *Store) ListSeries(ctx context.Context, filter persistence.SeriesFilter) ([]persistence.LessonSeries, error) {
	query := "SELECT " + seriesColumns + " FROM lesson_series"

	var conditions []string
	var args []any

	if filter.StudentID != "" {
		conditions = append(conditions, "student_id = ?")
		args = append(args, filter.StudentID)
	}

	switch {
	case filter.StartsAfter != nil && filter.EndsBefore != nil:
		conditions = append(conditions, "(recurrence_rule IS NOT NULL OR (anchor >= ? AND anchor <= ?))")
		args = append(args, formatTime(*filter.StartsAfter), formatTime(*filter.EndsBefore))
	case filter.StartsAfter != nil:
		conditions = append(conditions, "(recurrence_rule IS NOT NULL OR anchor >= ?)")
		args = append(args, formatTime(*filter.StartsAfter))
	case filter.EndsBefore != nil:
		conditions = append(conditions, "(recurrence_rule IS NOT NULL OR anchor <= ?)")
		args = append(args, formatTime(*filter.EndsBefore))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY anchor ASC, id ASC"

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []persistence.LessonSeries
	for rows.Next() {
		series, err := scanSeries(rows.Scan)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, series)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// DeleteSeries removes a series row; override, note and payment-link rows
// follow through the foreign key cascade.
func (s *Store) DeleteSeries(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := s.pool.DB().ExecContext(ctx, "DELETE FROM lesson_series WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

func insertSeriesTx(tx *sql.Tx, series persistence.LessonSeries) error {
	now := time.Now().UTC()
	series.CreatedAt = now
	series.UpdatedAt = now
	_, err := tx.Exec(
		"INSERT INTO lesson_series ("+seriesColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		seriesArgs(series)...,
	)
	return mapError(err)
}

func updateSeriesTx(tx *sql.Tx, series persistence.LessonSeries) error {
	result, err := tx.Exec(
		`UPDATE lesson_series
		 SET student_id = ?, anchor = ?, duration_minutes = ?, recurrence_rule = ?, default_note = ?, updated_at = ?
		 WHERE id = ?`,
		series.StudentID,
		formatTime(series.Anchor),
		series.DurationMinutes,
		nullString(series.RecurrenceRule),
		nullString(series.DefaultNote),
		formatTime(time.Now().UTC()),
		series.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

func deleteSeriesTx(tx *sql.Tx, id string) error {
	result, err := tx.Exec("DELETE FROM lesson_series WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(result)
}

func seriesArgs(series persistence.LessonSeries) []any {
	return []any{
		series.ID,
		series.StudentID,
		formatTime(series.Anchor),
		series.DurationMinutes,
		nullString(series.RecurrenceRule),
		nullString(series.DefaultNote),
		formatTime(series.CreatedAt),
		formatTime(series.UpdatedAt),
	}
}

func scanSeries(scan func(dest ...any) error) (persistence.LessonSeries, error) {
	var series persistence.LessonSeries
	var anchorStr, createdAtStr, updatedAtStr string
	var rule, note sql.NullString

	err := scan(
		&series.ID,
		&series.StudentID,
		&anchorStr,
		&series.DurationMinutes,
		&rule,
		&note,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return persistence.LessonSeries{}, err
	}

	if rule.Valid {
		series.RecurrenceRule = &rule.String
	}
	if note.Valid {
		series.DefaultNote = &note.String
	}

	if series.Anchor, err = parseTime(anchorStr); err != nil {
		return persistence.LessonSeries{}, fmt.Errorf("failed to parse anchor: %w", err)
	}
	if series.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.LessonSeries{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if series.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.LessonSeries{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return series, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
