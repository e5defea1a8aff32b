package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/lesson-scheduler/internal/lessons"
	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/recurrence"
)

// ApplyPlan executes every store write of a mutation plan inside a single
// transaction. A mutation therefore either fully applies or leaves the store
// untouched; the planner itself never talks to the store.
func (s *Store) ApplyPlan(ctx context.Context, plan lessons.Plan) error {
	if len(plan.Ops) == 0 {
		return nil
	}

	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, op := range plan.Ops {
			if err := s.applyOp(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) applyOp(tx *sql.Tx, op lessons.Op) error {
	switch op := op.(type) {
	case lessons.UpdateSeriesOp:
		row, err := s.seriesRow(op.Series)
		if err != nil {
			return err
		}
		return updateSeriesTx(tx, row)

	case lessons.InsertSeriesOp:
		row, err := s.seriesRow(op.Series)
		if err != nil {
			return err
		}
		return insertSeriesTx(tx, row)

	case lessons.DeleteSeriesOp:
		return deleteSeriesTx(tx, op.SeriesID)

	case lessons.UpsertOverrideOp:
		return upsertOverrideTx(tx, overrideRow(op.Override))

	case lessons.DeleteOverrideOp:
		return deleteOverrideTx(tx, op.SeriesID, op.Date.String())

	case lessons.UpsertNoteOp:
		return upsertNoteTx(tx, persistence.OccurrenceNote{
			SeriesID: op.Note.SeriesID,
			Date:     op.Note.Date.String(),
			Text:     op.Note.Text,
		})

	case lessons.DeleteNoteOp:
		return deleteNoteTx(tx, op.SeriesID, op.Date.String())

	case lessons.MovePaymentLinksOp:
		return movePaymentLinksTx(tx, op.SeriesID, op.Date.String(), op.NewSeriesID, op.NewDate.String())

	default:
		return fmt.Errorf("sqlite: unknown plan op %T", op)
	}
}

func (s *Store) seriesRow(series lessons.Series) (persistence.LessonSeries, error) {
	row := persistence.LessonSeries{
		ID:              series.ID,
		StudentID:       series.StudentID,
		Anchor:          series.Anchor,
		DurationMinutes: series.DurationMinutes,
		DefaultNote:     series.DefaultNote,
	}

	if series.Rule != nil {
		encoded, err := recurrence.Encode(*series.Rule, s.location)
		if err != nil {
			return persistence.LessonSeries{}, fmt.Errorf("sqlite: encode recurrence rule: %w", err)
		}
		row.RecurrenceRule = &encoded
	}

	return row, nil
}

func overrideRow(override lessons.Override) persistence.OccurrenceOverride {
	return persistence.OccurrenceOverride{
		SeriesID:        override.SeriesID,
		Date:            override.Date.String(),
		NewStart:        override.NewStart,
		DurationMinutes: override.DurationMinutes,
		Note:            override.Note,
	}
}
