package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily repeats every Interval days.
	FrequencyDaily
	// FrequencyWeekly repeats every Interval weeks on the anchor's weekday.
	FrequencyWeekly
	// FrequencyMonthly repeats every Interval months on the anchor's day of month.
	FrequencyMonthly
)

// String returns the lowercase name of the frequency.
func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	case FrequencyMonthly:
		return "monthly"
	default:
		return "unspecified"
	}
}

// EndMode describes how a rule terminates.
type EndMode int

const (
	// EndNever keeps generating occurrences indefinitely.
	EndNever EndMode = iota
	// EndUntil stops after the Until instant (inclusive).
	EndUntil
	// EndCount stops after Count occurrences, the anchor included.
	EndCount
)

// Rule is the decoded form of a persisted recurrence rule.
//
// Until carries the end-of-day instant of the last included calendar day when
// EndMode is EndUntil; Count is the total number of occurrences when EndMode
// is EndCount. The anchor instant itself lives on the owning series, not here.
type Rule struct {
	Frequency Frequency
	Interval  int
	EndMode   EndMode
	Until     time.Time
	Count     int
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidInterval indicates the interval is not a positive integer.
var ErrInvalidInterval = errors.New("recurrence: interval must be at least 1")

// Validate reports whether the rule is internally consistent.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return ErrInvalidFrequency
	}
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	switch r.EndMode {
	case EndNever:
	case EndUntil:
		if r.Until.IsZero() {
			return fmt.Errorf("recurrence: until rule requires an end instant")
		}
	case EndCount:
		if r.Count < 1 {
			return fmt.Errorf("recurrence: count rule requires at least one occurrence")
		}
	default:
		return fmt.Errorf("recurrence: unknown end mode %d", r.EndMode)
	}
	return nil
}

// Equal reports whether two rules describe the same occurrence set.
func (r Rule) Equal(other Rule) bool {
	if r.Frequency != other.Frequency || r.Interval != other.Interval || r.EndMode != other.EndMode {
		return false
	}
	switch r.EndMode {
	case EndUntil:
		return r.Until.Equal(other.Until)
	case EndCount:
		return r.Count == other.Count
	default:
		return true
	}
}
