package application

import (
	"time"

	"github.com/example/lesson-scheduler/internal/lessons"
	"github.com/example/lesson-scheduler/internal/recurrence"
)

// CreateLessonParams captures caller provided fields for a new lesson or series.
type CreateLessonParams struct {
	StudentID       string
	Start           time.Time
	DurationMinutes int
	Note            *string
	Rule            *recurrence.Rule
}

// ListOccurrencesParams bounds an occurrence listing. The window is inclusive.
type ListOccurrencesParams struct {
	From      time.Time
	To        time.Time
	StudentID string
}

// OccurrenceEdit carries the changed fields of an edit mutation. Nil fields
// keep the current value. Rule is consulted only for future scope and only
// when RuleChanged is set.
type OccurrenceEdit struct {
	Start           *time.Time
	DurationMinutes *int
	Note            *string
	Rule            *recurrence.Rule
	RuleChanged     bool
}

// EditOccurrenceParams wraps the data required to edit an occurrence.
type EditOccurrenceParams struct {
	SeriesID string
	Date     lessons.LocalDate
	Scope    lessons.Scope
	Edit     OccurrenceEdit
}

// DeleteOccurrenceParams wraps the data required to delete an occurrence.
type DeleteOccurrenceParams struct {
	SeriesID string
	Date     lessons.LocalDate
	Scope    lessons.Scope
}

// MoveOccurrenceParams wraps the data for an override-based occurrence move.
// Nil fields keep whatever the occurrence currently resolves to.
type MoveOccurrenceParams struct {
	SeriesID        string
	Date            lessons.LocalDate
	NewStart        *time.Time
	DurationMinutes *int
	Note            *string
}

// RecordPaymentParams ties one payment to a set of occurrences of a series.
type RecordPaymentParams struct {
	StudentID   string
	SeriesID    string
	Dates       []lessons.LocalDate
	PaymentID   string
	AmountCents int64
}
