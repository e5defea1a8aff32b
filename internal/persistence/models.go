package persistence

import "time"

// LessonSeries is one stored row: a single lesson, or the anchor of a
// repeating series when RecurrenceRule is set. RecurrenceRule holds the
// encoded rule string; decoding happens in the engine, never here.
type LessonSeries struct {
	ID              string
	StudentID       string
	Anchor          time.Time
	DurationMinutes int
	RecurrenceRule  *string
	DefaultNote     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OccurrenceOverride modifies one occurrence of a series, keyed by the
// occurrence's original local date (canonical YYYY-MM-DD). A NULL NewStart
// marks the occurrence as deleted. At most one row exists per key.
type OccurrenceOverride struct {
	SeriesID        string
	Date            string
	NewStart        *time.Time
	DurationMinutes *int
	Note            *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OccurrenceNote annotates one occurrence without otherwise modifying it.
type OccurrenceNote struct {
	SeriesID  string
	Date      string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentLink ties a recorded payment to one occurrence. Existence of a link
// for an occurrence key is the authoritative paid signal.
type PaymentLink struct {
	SeriesID    string
	Date        string
	PaymentID   string
	AmountCents int64
	CreatedAt   time.Time
}
