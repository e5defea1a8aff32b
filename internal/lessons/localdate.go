package lessons

import (
	"fmt"
	"time"
)

// LocalDate identifies a wall-clock calendar day in the service's local
// timezone. Overrides, notes and payment links are keyed by the local date of
// the occurrence they modify, not by its absolute instant, so a rescheduled
// occurrence keeps its identity within the day it originally fell on.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the local calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) LocalDate {
	year, month, day := t.In(loc).Date()
	return LocalDate{Year: year, Month: month, Day: day}
}

// ParseLocalDate parses the canonical YYYY-MM-DD form.
func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return LocalDate{}, fmt.Errorf("lessons: parse local date %q: %w", s, err)
	}
	year, month, day := t.Date()
	return LocalDate{Year: year, Month: month, Day: day}, nil
}

// String renders the canonical YYYY-MM-DD form used as the persisted key.
func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset.
func (d LocalDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// StartOfDay returns midnight of the day in loc.
func (d LocalDate) StartOfDay(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the date n calendar days later (earlier when negative).
func (d LocalDate) AddDays(n int) LocalDate {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	year, month, day := t.Date()
	return LocalDate{Year: year, Month: month, Day: day}
}

// Compare orders two dates chronologically (-1, 0, +1).
func (d LocalDate) Compare(other LocalDate) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

// Before reports whether d precedes other.
func (d LocalDate) Before(other LocalDate) bool { return d.Compare(other) < 0 }

// After reports whether d follows other.
func (d LocalDate) After(other LocalDate) bool { return d.Compare(other) > 0 }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
