package lessons

import (
	"time"

	"github.com/example/lesson-scheduler/internal/recurrence"
)

// UnpaidOccurrences walks one series from its anchor through the earlier of
// the series end and now+horizon, resolves exceptions, and returns the
// occurrences without a payment link, ascending, capped at capPerSeries so an
// unbounded series cannot flood the result.
func UnpaidOccurrences(expander *recurrence.Expander, series Series, data SeriesData, now time.Time, horizon time.Duration, capPerSeries int) ([]Occurrence, error) {
	end := expander.EffectiveEnd(series.Anchor, series.Rule)
	if bound := now.Add(horizon); bound.Before(end) {
		end = bound
	}
	if end.Before(series.Anchor) {
		return nil, nil
	}

	raw, err := expander.Expand(series.Anchor, series.Rule, series.Anchor, end)
	if err != nil {
		return nil, err
	}

	resolved := Resolve(series, raw, data, expander.Location())

	unpaid := make([]Occurrence, 0, len(resolved))
	for _, occ := range resolved {
		if occ.Paid {
			continue
		}
		unpaid = append(unpaid, occ)
		if capPerSeries > 0 && len(unpaid) >= capPerSeries {
			break
		}
	}

	return unpaid, nil
}
