package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

// UpsertNote writes a note row, replacing any existing row for the same
// (series, date) key.
func (s *Store) UpsertNote(ctx context.Context, note persistence.OccurrenceNote) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return upsertNoteTx(tx, note)
	})
}

// DeleteNote removes the note row for a key, if present.
func (s *Store) DeleteNote(ctx context.Context, seriesID, date string) error {
	_, err := s.pool.DB().ExecContext(ctx,
		"DELETE FROM occurrence_notes WHERE series_id = ? AND date = ?", seriesID, date)
	return mapError(err)
}

// ListNotes returns all note rows for the given series.
func (s *Store) ListNotes(ctx context.Context, seriesIDs []string) ([]persistence.OccurrenceNote, error) {
	if len(seriesIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT series_id, date, text, created_at, updated_at
		 FROM occurrence_notes
		 WHERE series_id IN (%s)
		 ORDER BY series_id ASC, date ASC`,
		placeholders(len(seriesIDs)),
	)

	rows, err := s.pool.DB().QueryContext(ctx, query, stringArgs(seriesIDs)...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []persistence.OccurrenceNote
	for rows.Next() {
		var note persistence.OccurrenceNote
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&note.SeriesID, &note.Date, &note.Text, &createdAtStr, &updatedAtStr); err != nil {
			return nil, mapError(err)
		}
		if note.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if note.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		result = append(result, note)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func upsertNoteTx(tx *sql.Tx, note persistence.OccurrenceNote) error {
	now := formatTime(time.Now().UTC())
	_, err := tx.Exec(
		`INSERT INTO occurrence_notes (series_id, date, text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(series_id, date) DO UPDATE SET
			text = excluded.text,
			updated_at = excluded.updated_at`,
		note.SeriesID,
		note.Date,
		note.Text,
		now,
		now,
	)
	return mapError(err)
}

func deleteNoteTx(tx *sql.Tx, seriesID, date string) error {
	_, err := tx.Exec("DELETE FROM occurrence_notes WHERE series_id = ? AND date = ?", seriesID, date)
	return mapError(err)
}
