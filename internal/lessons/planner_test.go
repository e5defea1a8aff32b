package lessons

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lesson-scheduler/internal/recurrence"
)

func newTestPlanner() *Planner {
	n := 0
	gen := func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
	return NewPlanner(recurrence.NewExpander(time.UTC), gen)
}

// countedSeries returns a weekly series with the given number of occurrences,
// anchored Monday 2025-03-03 10:00 UTC.
func countedSeries(count int) Series {
	return Series{
		ID:              "series-1",
		StudentID:       "student-1",
		Anchor:          time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Rule: &recurrence.Rule{
			Frequency: recurrence.FrequencyWeekly,
			Interval:  1,
			EndMode:   recurrence.EndCount,
			Count:     count,
		},
	}
}

func occurrenceDate(series Series, idx int) LocalDate {
	return DateOf(series.Anchor.AddDate(0, 0, 7*idx), time.UTC)
}

func seriesUpdates(plan Plan) []Series {
	var out []Series
	for _, op := range plan.Ops {
		if update, ok := op.(UpdateSeriesOp); ok {
			out = append(out, update.Series)
		}
	}
	return out
}

func seriesInserts(plan Plan) []Series {
	var out []Series
	for _, op := range plan.Ops {
		if insert, ok := op.(InsertSeriesOp); ok {
			out = append(out, insert.Series)
		}
	}
	return out
}

func seriesDeletes(plan Plan) []string {
	var out []string
	for _, op := range plan.Ops {
		if del, ok := op.(DeleteSeriesOp); ok {
			out = append(out, del.SeriesID)
		}
	}
	return out
}

func TestPlanDeleteSingleMiddleSplitsSeries(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, target, emptyData(), EditFields{})
	require.NoError(t, err)

	inserts := seriesInserts(plan)
	require.Len(t, inserts, 1, "the after side becomes a new series row")
	tail := inserts[0]
	assert.Equal(t, "new-1", tail.ID)
	assert.True(t, tail.Anchor.Equal(series.Anchor.AddDate(0, 0, 21)))
	require.NotNil(t, tail.Rule)
	assert.Equal(t, 2, tail.Rule.Count)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1, "the before side keeps the original row")
	before := updates[0]
	assert.Equal(t, series.ID, before.ID)
	require.NotNil(t, before.Rule)
	assert.Equal(t, recurrence.EndUntil, before.Rule.EndMode)
	wantUntil := recurrence.EndOfDay(target.AddDays(-1).StartOfDay(time.UTC), time.UTC)
	assert.True(t, before.Rule.Until.Equal(wantUntil), "truncation ends the day before the removed occurrence")

	// The insert must precede the update so data migrations land before any
	// change to the original row.
	insertAt, updateAt := -1, -1
	for i, op := range plan.Ops {
		switch op.(type) {
		case InsertSeriesOp:
			insertAt = i
		case UpdateSeriesOp:
			updateAt = i
		}
	}
	assert.Less(t, insertAt, updateAt)
}

func TestPlanDeleteSingleFirstAdvancesAnchor(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, occurrenceDate(series, 0), emptyData(), EditFields{})
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Anchor.Equal(series.Anchor.AddDate(0, 0, 7)))
	require.NotNil(t, updates[0].Rule)
	assert.Equal(t, 4, updates[0].Rule.Count)
	assert.Empty(t, seriesInserts(plan))
}

func TestPlanDeleteSingleLastTruncates(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 4)

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, target, emptyData(), EditFields{})
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Rule)
	assert.Equal(t, recurrence.EndUntil, updates[0].Rule.EndMode)
	assert.Empty(t, seriesInserts(plan))
}

func TestPlanDeleteSingleOnTwoOccurrencesCollapses(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(2)

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, occurrenceDate(series, 1), emptyData(), EditFields{})
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0].Rule, "the survivor is a standalone lesson")
	assert.True(t, updates[0].Anchor.Equal(series.Anchor))
	assert.Empty(t, seriesInserts(plan))
	assert.Empty(t, seriesDeletes(plan))
}

func TestPlanDeleteSingleOnLastRemainingDeletesSeries(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(1)

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, occurrenceDate(series, 0), emptyData(), EditFields{})
	require.NoError(t, err)
	assert.Equal(t, []string{series.ID}, seriesDeletes(plan))
}

func TestPlanDeleteStandaloneDeletesRow(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(1)
	series.Rule = nil

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, DateOf(series.Anchor, time.UTC), emptyData(), EditFields{})
	require.NoError(t, err)
	assert.Equal(t, []string{series.ID}, seriesDeletes(plan))
}

func TestPlanDeleteSingleCollapseBakesOverride(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(2)

	survivorKey := occurrenceDate(series, 0)
	moved := series.Anchor.Add(25 * time.Hour)
	shorter := 45
	data := emptyData()
	data.Overrides[survivorKey] = Override{
		SeriesID: series.ID, Date: survivorKey,
		NewStart: &moved, DurationMinutes: &shorter,
	}

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, occurrenceDate(series, 1), data, EditFields{})
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0].Rule)
	assert.True(t, updates[0].Anchor.Equal(moved), "the reschedule override is baked into the standalone row")
	assert.Equal(t, shorter, updates[0].DurationMinutes)

	var overrideDeleted bool
	for _, op := range plan.Ops {
		if del, ok := op.(DeleteOverrideOp); ok && del.Date == survivorKey {
			overrideDeleted = true
		}
	}
	assert.True(t, overrideDeleted)
}

func TestPlanDeleteSingleTombstonedSurvivorDeletesSeries(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(2)

	survivorKey := occurrenceDate(series, 0)
	data := emptyData()
	data.Overrides[survivorKey] = Override{SeriesID: series.ID, Date: survivorKey}

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, occurrenceDate(series, 1), data, EditFields{})
	require.NoError(t, err)
	assert.Equal(t, []string{series.ID}, seriesDeletes(plan))
}

func TestPlanDeleteFutureFromFirstDeletesSeries(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)

	plan, err := planner.PlanMutation(ActionDeleteFuture, series, occurrenceDate(series, 0), emptyData(), EditFields{})
	require.NoError(t, err)
	assert.Equal(t, []string{series.ID}, seriesDeletes(plan))
}

func TestPlanDeleteFutureFromSecondCollapses(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)

	plan, err := planner.PlanMutation(ActionDeleteFuture, series, occurrenceDate(series, 1), emptyData(), EditFields{})
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0].Rule)
	assert.True(t, updates[0].Anchor.Equal(series.Anchor))
}

func TestPlanDeleteFutureTruncatesAndCleansData(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	laterKey := occurrenceDate(series, 3)
	earlierKey := occurrenceDate(series, 1)
	data := emptyData()
	data.Notes[laterKey] = "gone with the tail"
	data.Notes[earlierKey] = "kept"

	plan, err := planner.PlanMutation(ActionDeleteFuture, series, target, data, EditFields{})
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Rule)
	assert.Equal(t, recurrence.EndUntil, updates[0].Rule.EndMode)
	wantUntil := recurrence.EndOfDay(target.AddDays(-1).StartOfDay(time.UTC), time.UTC)
	assert.True(t, updates[0].Rule.Until.Equal(wantUntil))

	var deletedNotes []LocalDate
	for _, op := range plan.Ops {
		if del, ok := op.(DeleteNoteOp); ok {
			deletedNotes = append(deletedNotes, del.Date)
		}
	}
	assert.Equal(t, []LocalDate{laterKey}, deletedNotes, "only data on or after the cutoff is removed")
}

func TestPlanEditSingleFirstUpdatesInPlace(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)

	duration := 90
	fields := EditFields{DurationMinutes: &duration}
	plan, err := planner.PlanMutation(ActionEditSingle, series, occurrenceDate(series, 0), emptyData(), fields)
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	assert.Equal(t, 90, updates[0].DurationMinutes)
	require.NotNil(t, updates[0].Rule, "single scope does not change the rule")
	assert.Equal(t, 5, updates[0].Rule.Count)
	assert.Empty(t, seriesInserts(plan))
}

func TestPlanEditSingleMiddleExtractsStandalone(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	newStart := series.Anchor.AddDate(0, 0, 15)
	fields := EditFields{Start: &newStart}
	plan, err := planner.PlanMutation(ActionEditSingle, series, target, emptyData(), fields)
	require.NoError(t, err)

	inserts := seriesInserts(plan)
	require.Len(t, inserts, 2, "one standalone for the target, one tail for the after side")

	standalone := inserts[0]
	assert.Nil(t, standalone.Rule)
	assert.True(t, standalone.Anchor.Equal(newStart))

	tail := inserts[1]
	require.NotNil(t, tail.Rule)
	assert.Equal(t, 2, tail.Rule.Count)
	assert.True(t, tail.Anchor.Equal(series.Anchor.AddDate(0, 0, 21)))

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Rule)
	assert.Equal(t, recurrence.EndUntil, updates[0].Rule.EndMode)
}

func TestPlanEditSingleLastExtractsAndTruncates(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 4)

	duration := 30
	plan, err := planner.PlanMutation(ActionEditSingle, series, target, emptyData(), EditFields{DurationMinutes: &duration})
	require.NoError(t, err)

	inserts := seriesInserts(plan)
	require.Len(t, inserts, 1)
	assert.Nil(t, inserts[0].Rule)
	assert.Equal(t, 30, inserts[0].DurationMinutes)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Rule)
	assert.Equal(t, recurrence.EndUntil, updates[0].Rule.EndMode)
}

func TestPlanEditFutureFromFirstUpdatesInPlace(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)

	duration := 90
	plan, err := planner.PlanMutation(ActionEditFuture, series, occurrenceDate(series, 0), emptyData(), EditFields{DurationMinutes: &duration})
	require.NoError(t, err)

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	assert.Equal(t, 90, updates[0].DurationMinutes)
	assert.Empty(t, seriesInserts(plan))
}

func TestPlanEditFutureSplitsAtTarget(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	duration := 90
	plan, err := planner.PlanMutation(ActionEditFuture, series, target, emptyData(), EditFields{DurationMinutes: &duration})
	require.NoError(t, err)

	inserts := seriesInserts(plan)
	require.Len(t, inserts, 1)
	tail := inserts[0]
	assert.True(t, tail.Anchor.Equal(series.Anchor.AddDate(0, 0, 14)))
	assert.Equal(t, 90, tail.DurationMinutes)
	require.NotNil(t, tail.Rule)
	assert.Equal(t, 3, tail.Rule.Count, "the tail keeps the remaining occurrences")

	updates := seriesUpdates(plan)
	require.Len(t, updates, 1)
	assert.Equal(t, series.ID, updates[0].ID)
	assert.Equal(t, 60, updates[0].DurationMinutes, "the before side keeps its old fields")
	require.NotNil(t, updates[0].Rule)
	assert.Equal(t, recurrence.EndUntil, updates[0].Rule.EndMode)
}

func TestPlanEditFutureRuleChangeStopsRecurrence(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	fields := EditFields{RuleChanged: true, Rule: nil}
	plan, err := planner.PlanMutation(ActionEditFuture, series, target, emptyData(), fields)
	require.NoError(t, err)

	inserts := seriesInserts(plan)
	require.Len(t, inserts, 1)
	assert.Nil(t, inserts[0].Rule, "a changed nil rule makes the tail standalone")
}

func TestPlanEditFutureMigratesLaterData(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	laterKey := occurrenceDate(series, 3)
	moved := series.Anchor.AddDate(0, 0, 22)
	data := emptyData()
	data.Overrides[laterKey] = Override{SeriesID: series.ID, Date: laterKey, NewStart: &moved}
	data.Notes[laterKey] = "homework"
	data.Paid[laterKey] = true

	duration := 90
	plan, err := planner.PlanMutation(ActionEditFuture, series, target, data, EditFields{DurationMinutes: &duration})
	require.NoError(t, err)

	tailID := seriesInserts(plan)[0].ID

	var migratedOverride, migratedNote, movedPayment bool
	for _, op := range plan.Ops {
		switch op := op.(type) {
		case UpsertOverrideOp:
			if op.Override.SeriesID == tailID && op.Override.Date == laterKey {
				migratedOverride = true
			}
		case UpsertNoteOp:
			if op.Note.SeriesID == tailID && op.Note.Date == laterKey {
				migratedNote = true
			}
		case MovePaymentLinksOp:
			if op.NewSeriesID == tailID && op.Date == laterKey {
				movedPayment = true
			}
		}
	}
	assert.True(t, migratedOverride, "later overrides move to the tail row")
	assert.True(t, migratedNote, "later notes move to the tail row")
	assert.True(t, movedPayment, "later payment links move to the tail row")
}

func TestPlanMutationRejectsUnknownOccurrence(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)

	badDate := occurrenceDate(series, 0).AddDays(3)
	_, err := planner.PlanMutation(ActionDeleteSingle, series, badDate, emptyData(), EditFields{})

	var invErr *InvariantError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, series.ID, invErr.SeriesID)
}

func TestPlanMutationRejectsTombstonedTarget(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	data := emptyData()
	data.Overrides[target] = Override{SeriesID: series.ID, Date: target}

	_, err := planner.PlanMutation(ActionDeleteSingle, series, target, data, EditFields{})

	var invErr *InvariantError
	require.ErrorAs(t, err, &invErr)
}

func TestPlanDeleteNeverTouchesPaymentLinks(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(5)
	target := occurrenceDate(series, 2)

	data := emptyData()
	data.Paid[target] = true

	plan, err := planner.PlanMutation(ActionDeleteSingle, series, target, data, EditFields{})
	require.NoError(t, err)

	for _, op := range plan.Ops {
		if move, ok := op.(MovePaymentLinksOp); ok {
			assert.NotEqual(t, target, move.Date, "payment links of the removed occurrence stay in place")
		}
	}
}

func TestHasFutureOccurrences(t *testing.T) {
	planner := newTestPlanner()
	series := countedSeries(3)

	hasFuture, err := planner.HasFutureOccurrences(series, occurrenceDate(series, 0))
	require.NoError(t, err)
	assert.True(t, hasFuture)

	hasFuture, err = planner.HasFutureOccurrences(series, occurrenceDate(series, 2))
	require.NoError(t, err)
	assert.False(t, hasFuture)

	standalone := series
	standalone.Rule = nil
	hasFuture, err = planner.HasFutureOccurrences(standalone, DateOf(standalone.Anchor, time.UTC))
	require.NoError(t, err)
	assert.False(t, hasFuture)
}
