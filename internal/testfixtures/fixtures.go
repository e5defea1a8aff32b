// Package testfixtures provides deterministic clocks, identifier generators
// and canned lesson data shared across test suites.
package testfixtures

import (
	"time"

	"github.com/example/lesson-scheduler/internal/lessons"
	"github.com/example/lesson-scheduler/internal/recurrence"
)

var referenceTime = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

// ReferenceTime returns the shared deterministic instant tests anchor on: a
// Monday at 10:00 UTC.
func ReferenceTime() time.Time {
	return referenceTime
}

// WeeklyRule builds a weekly rule ending after count occurrences.
func WeeklyRule(count int) *recurrence.Rule {
	return &recurrence.Rule{
		Frequency: recurrence.FrequencyWeekly,
		Interval:  1,
		EndMode:   recurrence.EndCount,
		Count:     count,
	}
}

// WeeklySeries builds a weekly series of count occurrences anchored on the
// reference time in the given location.
func WeeklySeries(id, studentID string, count int, loc *time.Location) lessons.Series {
	if loc == nil {
		loc = time.UTC
	}
	return lessons.Series{
		ID:              id,
		StudentID:       studentID,
		Anchor:          referenceTime.In(loc),
		DurationMinutes: 60,
		Rule:            WeeklyRule(count),
	}
}

// StandaloneLesson builds a non-recurring lesson anchored on the reference
// time in the given location.
func StandaloneLesson(id, studentID string, loc *time.Location) lessons.Series {
	if loc == nil {
		loc = time.UTC
	}
	return lessons.Series{
		ID:              id,
		StudentID:       studentID,
		Anchor:          referenceTime.In(loc),
		DurationMinutes: 60,
	}
}

// EmptySeriesData returns a SeriesData with all maps initialised.
func EmptySeriesData() lessons.SeriesData {
	return lessons.SeriesData{
		Overrides: make(map[lessons.LocalDate]lessons.Override),
		Notes:     make(map[lessons.LocalDate]string),
		Paid:      make(map[lessons.LocalDate]bool),
	}
}
