package lessons

import (
	"sort"
	"time"
)

// SeriesData bundles the per-occurrence rows loaded for one series: overrides
// and notes keyed by original local date, and the set of dates for which a
// payment link exists. PaymentLink existence is the authoritative paid
// signal.
type SeriesData struct {
	Overrides map[LocalDate]Override
	Notes     map[LocalDate]string
	Paid      map[LocalDate]bool
}

// Resolve merges raw expanded occurrence instants with the series' overrides,
// notes and payment links into the final occurrence list.
//
// An override with a nil NewStart removes its occurrence. A reschedule
// override replaces the start instant and, where present, the duration and
// note. Notes resolve with the note table first, then the override note, then
// the series default. Paid is the existence of a payment link for the
// occurrence's original local date.
func Resolve(series Series, raw []time.Time, data SeriesData, loc *time.Location) []Occurrence {
	occurrences := make([]Occurrence, 0, len(raw))

	for _, start := range raw {
		key := DateOf(start, loc)

		occ := Occurrence{
			SeriesID:        series.ID,
			StudentID:       series.StudentID,
			Date:            key,
			Start:           start,
			DurationMinutes: series.DurationMinutes,
			Note:            series.DefaultNote,
			Paid:            data.Paid[key],
			Recurring:       series.Recurring(),
		}

		if override, ok := data.Overrides[key]; ok {
			if override.Deleted() {
				continue
			}
			occ.Start = *override.NewStart
			if override.DurationMinutes != nil {
				occ.DurationMinutes = *override.DurationMinutes
			}
			if override.Note != nil {
				occ.Note = override.Note
			}
		}

		if text, ok := data.Notes[key]; ok {
			occ.Note = &text
		}

		occurrences = append(occurrences, occ)
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].Start.Before(occurrences[j].Start)
	})

	return occurrences
}

// RedundantOverride reports whether a candidate override reproduces exactly
// what the unmodified series would have produced for the occurrence at
// rawStart. Redundant overrides must not be persisted: the write path deletes
// any existing row for the key instead of upserting, so repeated no-op edits
// cannot bloat the override table.
func RedundantOverride(series Series, rawStart time.Time, candidate Override) bool {
	if candidate.NewStart == nil {
		return false
	}
	if !candidate.NewStart.Equal(rawStart) {
		return false
	}
	if candidate.DurationMinutes != nil && *candidate.DurationMinutes != series.DurationMinutes {
		return false
	}
	if candidate.Note != nil {
		if series.DefaultNote == nil || *candidate.Note != *series.DefaultNote {
			return false
		}
	}
	return true
}
