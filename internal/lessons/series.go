package lessons

import (
	"time"

	"github.com/example/lesson-scheduler/internal/recurrence"
)

// Series is a stored lesson series: either a single lesson or the anchor of a
// repeating one. A nil Rule means the series has exactly one occurrence at
// the anchor instant.
type Series struct {
	ID              string
	StudentID       string
	Anchor          time.Time
	DurationMinutes int
	Rule            *recurrence.Rule
	DefaultNote     *string
}

// Recurring reports whether the series carries a recurrence rule.
func (s Series) Recurring() bool { return s.Rule != nil }

// Override modifies a single occurrence of a series, keyed by the occurrence's
// original local date. A nil NewStart marks the occurrence as deleted; other
// fields override the series defaults when non-nil.
type Override struct {
	SeriesID        string
	Date            LocalDate
	NewStart        *time.Time
	DurationMinutes *int
	Note            *string
}

// Deleted reports whether the override tombstones its occurrence.
func (o Override) Deleted() bool { return o.NewStart == nil }

// Note annotates a single occurrence without otherwise modifying it.
type Note struct {
	SeriesID string
	Date     LocalDate
	Text     string
}

// Occurrence is one resolved calendar entry. Date is the occurrence's
// original local date, the key callers pass back for per-occurrence edits;
// Start already reflects any reschedule override.
type Occurrence struct {
	SeriesID        string
	StudentID       string
	Date            LocalDate
	Start           time.Time
	DurationMinutes int
	Note            *string
	Paid            bool
	Recurring       bool
}

// End returns the occurrence end instant.
func (o Occurrence) End() time.Time {
	return o.Start.Add(time.Duration(o.DurationMinutes) * time.Minute)
}
