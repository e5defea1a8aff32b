package lessons

import "fmt"

// InvariantError reports a state mismatch between the caller and the stored
// series, typically a target occurrence that is not part of the expanded set.
// It is never swallowed; the caller decides whether to retry or alert.
type InvariantError struct {
	SeriesID string
	Date     LocalDate
	Reason   string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("lessons: series %s, occurrence %s: %s", e.SeriesID, e.Date, e.Reason)
}
