package recurrence

import (
	"errors"
	"time"
)

// ErrInvalidWindow indicates the expansion window is unbounded or inverted.
var ErrInvalidWindow = errors.New("recurrence: expansion window must be bounded and ordered")

// Expander materializes occurrence instants for a series within a window.
//
// The local timezone is an explicit dependency rather than ambient process
// state: occurrence identity and day boundaries are defined by wall-clock
// dates in this location.
type Expander struct {
	location *time.Location
}

// NewExpander constructs an Expander for the given location. If loc is nil,
// UTC is used.
func NewExpander(loc *time.Location) *Expander {
	if loc == nil {
		loc = time.UTC
	}
	return &Expander{location: loc}
}

// Location returns the expander's local timezone.
func (e *Expander) Location() *time.Location {
	return e.location
}

// Expand returns the raw occurrence instants of a series within the inclusive
// window [windowStart, windowEnd], ascending and without duplicates.
//
// Every generated occurrence shares the anchor's local wall-clock time-of-day.
// The time-of-day is extracted from the anchor once; each occurrence is then
// rebuilt as local date + time-of-day, so a DST transition between anchor and
// occurrence shifts the UTC offset, never the local clock time.
//
// A nil rule means the series is not recurring: the result is the anchor
// itself when it falls inside the window, otherwise empty.
func (e *Expander) Expand(anchor time.Time, rule *Rule, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if windowStart.IsZero() || windowEnd.IsZero() || windowEnd.Before(windowStart) {
		return nil, ErrInvalidWindow
	}

	if rule == nil {
		if anchor.Before(windowStart) || anchor.After(windowEnd) {
			return nil, nil
		}
		return []time.Time{anchor.In(e.location)}, nil
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}

	local := anchor.In(e.location)
	year, month, day := local.Date()
	hour, minute, sec := local.Clock()
	nsec := local.Nanosecond()

	occurrences := make([]time.Time, 0)
	for k := 0; ; k++ {
		if rule.EndMode == EndCount && k >= rule.Count {
			break
		}

		var occurrence time.Time
		switch rule.Frequency {
		case FrequencyDaily:
			occurrence = time.Date(year, month, day+k*rule.Interval, hour, minute, sec, nsec, e.location)
		case FrequencyWeekly:
			occurrence = time.Date(year, month, day+7*k*rule.Interval, hour, minute, sec, nsec, e.location)
		case FrequencyMonthly:
			occurrence = time.Date(year, month+time.Month(k*rule.Interval), day, hour, minute, sec, nsec, e.location)
		}

		if rule.EndMode == EndUntil && occurrence.After(rule.Until) {
			break
		}
		if occurrence.After(windowEnd) {
			break
		}
		if !occurrence.Before(windowStart) {
			occurrences = append(occurrences, occurrence)
		}
	}

	return occurrences, nil
}

// Nth returns the instant of the k-th occurrence (zero-based, the anchor
// being occurrence 0), ignoring the rule's end condition.
func (e *Expander) Nth(anchor time.Time, rule *Rule, k int) time.Time {
	if rule == nil || k <= 0 {
		return anchor.In(e.location)
	}

	local := anchor.In(e.location)
	year, month, day := local.Date()
	hour, minute, sec := local.Clock()
	nsec := local.Nanosecond()

	switch rule.Frequency {
	case FrequencyWeekly:
		return time.Date(year, month, day+7*k*rule.Interval, hour, minute, sec, nsec, e.location)
	case FrequencyMonthly:
		return time.Date(year, month+time.Month(k*rule.Interval), day, hour, minute, sec, nsec, e.location)
	default:
		return time.Date(year, month, day+k*rule.Interval, hour, minute, sec, nsec, e.location)
	}
}

// EffectiveEnd returns the inclusive upper bound used when a mutation needs
// the full occurrence index of a series. Until-bounded rules end at their
// boundary, count-bounded rules at their final occurrence, and unbounded
// rules are capped ten years past the anchor.
func (e *Expander) EffectiveEnd(anchor time.Time, rule *Rule) time.Time {
	if rule == nil {
		return anchor.In(e.location)
	}
	switch rule.EndMode {
	case EndUntil:
		return rule.Until
	case EndCount:
		return e.Nth(anchor, rule, rule.Count-1)
	default:
		return anchor.In(e.location).AddDate(10, 0, 0)
	}
}
