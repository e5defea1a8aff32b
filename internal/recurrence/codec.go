package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DecodeError reports a persisted rule string that could not be decoded.
// Callers must propagate it; only the outermost UI boundary may choose to
// treat an undecodable rule as non-recurring.
type DecodeError struct {
	Encoded string
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recurrence: decode %q: %s: %v", e.Encoded, e.Reason, e.Err)
	}
	return fmt.Sprintf("recurrence: decode %q: %s", e.Encoded, e.Reason)
}

// Unwrap exposes the underlying parser error when present.
func (e *DecodeError) Unwrap() error { return e.Err }

// EndOfDay returns the inclusive end-of-day boundary (23:59:59.999) of t's
// calendar day in loc. An "ends on day D" rule includes all of day D
// regardless of the anchor's time-of-day.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 23, 59, 59, 999_000_000, loc)
}

// Encode serializes a rule as RFC 5545 RRULE content, the single persisted
// bit-exact format. The UNTIL boundary is normalized to the end of its local
// calendar day before serialization.
func Encode(rule Rule, loc *time.Location) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	if loc == nil {
		loc = time.UTC
	}

	opt := rrule.ROption{Interval: rule.Interval}

	switch rule.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
	}

	switch rule.EndMode {
	case EndUntil:
		opt.Until = EndOfDay(rule.Until, loc).UTC()
	case EndCount:
		opt.Count = rule.Count
	}

	return opt.String(), nil
}

// Decode parses persisted RRULE content back into a Rule. The UNTIL instant,
// when present, is normalized to the end of its calendar day in loc so that
// decode(encode(r)) reproduces an equivalent rule.
func Decode(encoded string, loc *time.Location) (Rule, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return Rule{}, &DecodeError{Encoded: encoded, Reason: "empty rule"}
	}
	if loc == nil {
		loc = time.UTC
	}

	opt, err := rrule.StrToROption(trimmed)
	if err != nil {
		return Rule{}, &DecodeError{Encoded: encoded, Reason: "malformed rule", Err: err}
	}

	rule := Rule{Interval: opt.Interval}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = FrequencyDaily
	case rrule.WEEKLY:
		rule.Frequency = FrequencyWeekly
	case rrule.MONTHLY:
		rule.Frequency = FrequencyMonthly
	default:
		return Rule{}, &DecodeError{Encoded: encoded, Reason: fmt.Sprintf("unsupported frequency %d", opt.Freq)}
	}

	if hasUnsupportedComponents(opt) {
		return Rule{}, &DecodeError{Encoded: encoded, Reason: "unsupported rule component"}
	}

	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if rule.Interval < 0 {
		return Rule{}, &DecodeError{Encoded: encoded, Reason: "negative interval"}
	}

	hasCount := opt.Count > 0
	hasUntil := !opt.Until.IsZero()
	switch {
	case hasCount && hasUntil:
		return Rule{}, &DecodeError{Encoded: encoded, Reason: "count and until are mutually exclusive"}
	case hasCount:
		rule.EndMode = EndCount
		rule.Count = opt.Count
	case hasUntil:
		rule.EndMode = EndUntil
		rule.Until = EndOfDay(opt.Until, loc)
	default:
		rule.EndMode = EndNever
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, &DecodeError{Encoded: encoded, Reason: "invalid rule", Err: err}
	}

	return rule, nil
}

func hasUnsupportedComponents(opt *rrule.ROption) bool {
	return len(opt.Bysetpos) > 0 ||
		len(opt.Bymonth) > 0 ||
		len(opt.Bymonthday) > 0 ||
		len(opt.Byyearday) > 0 ||
		len(opt.Byweekno) > 0 ||
		len(opt.Byweekday) > 0 ||
		len(opt.Byhour) > 0 ||
		len(opt.Byminute) > 0 ||
		len(opt.Bysecond) > 0 ||
		len(opt.Byeaster) > 0
}
