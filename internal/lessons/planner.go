package lessons

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/lesson-scheduler/internal/recurrence"
)

// EditFields carries caller-supplied changes for an edit mutation. Nil fields
// keep the current value. Rule is consulted only for future-scope edits and
// only when RuleChanged is set; a changed nil rule stops the series from
// recurring at the target.
type EditFields struct {
	Start           *time.Time
	DurationMinutes *int
	Note            *string
	Rule            *recurrence.Rule
	RuleChanged     bool
}

// Planner computes mutation plans over a series' occurrence index. It is pure
// computation: the caller loads the series and its per-occurrence data,
// and applies the returned plan to the store.
type Planner struct {
	expander *recurrence.Expander
	newID    func() string
}

// NewPlanner wires an expander and an identifier generator for rows the plan
// creates.
func NewPlanner(expander *recurrence.Expander, newID func() string) *Planner {
	if expander == nil {
		expander = recurrence.NewExpander(nil)
	}
	if newID == nil {
		newID = func() string { return "" }
	}
	return &Planner{expander: expander, newID: newID}
}

// PlanMutation maps an action at a target occurrence onto the store writes
// that implement it: in-place updates for edge occurrences, truncation for
// tails, a split for middle occurrences, and collapse to a standalone lesson
// (or outright deletion) when a remainder is left with one (or zero)
// occurrences.
//
// Every branch preserves the resolution contract: re-running expand+resolve
// over the ranges the mutation did not target reproduces exactly the prior
// occurrences, which is why overrides, notes and payment links migrate along
// with the occurrences they belong to.
func (p *Planner) PlanMutation(action Action, series Series, target LocalDate, data SeriesData, fields EditFields) (Plan, error) {
	loc := p.expander.Location()

	if !series.Recurring() {
		return p.planStandalone(action, series, target, data, fields, loc)
	}

	all, idx, err := p.occurrenceIndex(series, target, loc)
	if err != nil {
		return Plan{}, err
	}

	if override, ok := data.Overrides[target]; ok && override.Deleted() {
		return Plan{}, &InvariantError{SeriesID: series.ID, Date: target, Reason: "occurrence is already deleted"}
	}

	switch action {
	case ActionDeleteSingle:
		return p.planDeleteSingle(series, all, idx, data, loc)
	case ActionDeleteFuture:
		return p.planDeleteFuture(series, all, idx, data, loc)
	case ActionEditSingle:
		return p.planEditSingle(series, all, idx, data, fields, loc)
	case ActionEditFuture:
		return p.planEditFuture(series, all, idx, data, fields, loc)
	default:
		return Plan{}, fmt.Errorf("lessons: unknown action %d", action)
	}
}

// HasFutureOccurrences reports whether the series has at least one occurrence
// strictly after the target day. Callers use it to decide whether offering a
// single/future scope choice makes sense at all.
func (p *Planner) HasFutureOccurrences(series Series, target LocalDate) (bool, error) {
	if !series.Recurring() {
		return false, nil
	}
	loc := p.expander.Location()
	all, _, err := p.occurrenceIndex(series, target, loc)
	if err != nil {
		return false, err
	}
	last := DateOf(all[len(all)-1], loc)
	return last.After(target), nil
}

func (p *Planner) occurrenceIndex(series Series, target LocalDate, loc *time.Location) ([]time.Time, int, error) {
	end := p.expander.EffectiveEnd(series.Anchor, series.Rule)
	all, err := p.expander.Expand(series.Anchor, series.Rule, series.Anchor, end)
	if err != nil {
		return nil, 0, err
	}
	for i, start := range all {
		if DateOf(start, loc) == target {
			return all, i, nil
		}
	}
	return nil, 0, &InvariantError{SeriesID: series.ID, Date: target, Reason: "occurrence not found in expanded series"}
}

func (p *Planner) planStandalone(action Action, series Series, target LocalDate, data SeriesData, fields EditFields, loc *time.Location) (Plan, error) {
	if DateOf(series.Anchor, loc) != target {
		return Plan{}, &InvariantError{SeriesID: series.ID, Date: target, Reason: "occurrence not found in expanded series"}
	}

	var plan Plan
	switch action {
	case ActionDeleteSingle, ActionDeleteFuture:
		plan.add(DeleteSeriesOp{SeriesID: series.ID})
	case ActionEditSingle, ActionEditFuture:
		updated := applyFields(series, fields)
		plan.add(UpdateSeriesOp{Series: updated})
		plan.add(p.moveOccurrenceData(series, target, series.ID, DateOf(updated.Anchor, loc), data)...)
	default:
		return Plan{}, fmt.Errorf("lessons: unknown action %d", action)
	}
	return plan, nil
}

func (p *Planner) planDeleteSingle(series Series, all []time.Time, idx int, data SeriesData, loc *time.Location) (Plan, error) {
	var plan Plan
	total := len(all)
	target := DateOf(all[idx], loc)

	switch {
	case total == 1:
		plan.add(DeleteSeriesOp{SeriesID: series.ID})

	case total == 2:
		ops, deleted := p.collapseInPlace(series, all[1-idx], data, loc)
		plan.add(ops...)
		if !deleted {
			plan.add(cleanupDataAt(series.ID, target, data)...)
		}

	case idx == 0:
		advanced := series
		advanced.Anchor = all[1]
		advanced.Rule = remainingRule(series.Rule, total-1)
		plan.add(UpdateSeriesOp{Series: advanced})
		plan.add(cleanupDataAt(series.ID, target, data)...)

	case idx == total-1:
		truncated := series
		truncated.Rule = truncatedRule(series.Rule, target, loc)
		plan.add(UpdateSeriesOp{Series: truncated})
		plan.add(cleanupDataAt(series.ID, target, data)...)

	default:
		before := all[:idx]
		after := all[idx+1:]

		// The after side goes first: its migrations must re-key rows before
		// any cascade on the original row can reach them.
		plan.add(p.planAfterSide(series, after, target, data, loc)...)

		if len(before) == 1 {
			ops, _ := p.collapseInPlace(series, before[0], data, loc)
			plan.add(ops...)
		} else {
			truncated := series
			truncated.Rule = truncatedRule(series.Rule, target, loc)
			plan.add(UpdateSeriesOp{Series: truncated})
		}

		plan.add(cleanupDataAt(series.ID, target, data)...)
	}

	return plan, nil
}

func (p *Planner) planDeleteFuture(series Series, all []time.Time, idx int, data SeriesData, loc *time.Location) (Plan, error) {
	var plan Plan
	target := DateOf(all[idx], loc)

	switch {
	case idx == 0:
		plan.add(DeleteSeriesOp{SeriesID: series.ID})

	case idx == 1:
		ops, deleted := p.collapseInPlace(series, all[0], data, loc)
		plan.add(ops...)
		if !deleted {
			plan.add(cleanupDataOnOrAfter(series.ID, target, data)...)
		}

	default:
		truncated := series
		truncated.Rule = truncatedRule(series.Rule, target, loc)
		plan.add(UpdateSeriesOp{Series: truncated})
		plan.add(cleanupDataOnOrAfter(series.ID, target, data)...)
	}

	return plan, nil
}

func (p *Planner) planEditSingle(series Series, all []time.Time, idx int, data SeriesData, fields EditFields, loc *time.Location) (Plan, error) {
	var plan Plan
	total := len(all)
	target := DateOf(all[idx], loc)

	switch {
	case total == 1, idx == 0:
		// First-occurrence edits apply to the base row directly; the edited
		// fields do not touch the recurrence rule for single scope.
		updated := applyFields(series, fields)
		plan.add(UpdateSeriesOp{Series: updated})
		if _, ok := data.Overrides[target]; ok {
			plan.add(DeleteOverrideOp{SeriesID: series.ID, Date: target})
		}

	case total == 2:
		plan.add(p.standaloneForTarget(series, all[idx], data, fields, loc)...)
		ops, _ := p.collapseInPlace(series, all[0], data, loc)
		plan.add(ops...)

	case idx == total-1:
		plan.add(p.standaloneForTarget(series, all[idx], data, fields, loc)...)
		truncated := series
		truncated.Rule = truncatedRule(series.Rule, target, loc)
		plan.add(UpdateSeriesOp{Series: truncated})

	default:
		before := all[:idx]
		after := all[idx+1:]

		plan.add(p.standaloneForTarget(series, all[idx], data, fields, loc)...)
		plan.add(p.planAfterSide(series, after, target, data, loc)...)

		if len(before) == 1 {
			ops, _ := p.collapseInPlace(series, before[0], data, loc)
			plan.add(ops...)
		} else {
			truncated := series
			truncated.Rule = truncatedRule(series.Rule, target, loc)
			plan.add(UpdateSeriesOp{Series: truncated})
		}
	}

	return plan, nil
}

func (p *Planner) planEditFuture(series Series, all []time.Time, idx int, data SeriesData, fields EditFields, loc *time.Location) (Plan, error) {
	var plan Plan
	total := len(all)
	target := DateOf(all[idx], loc)

	if idx == 0 {
		updated := applyFields(series, fields)
		if fields.RuleChanged {
			updated.Rule = fields.Rule
		}
		plan.add(UpdateSeriesOp{Series: updated})
		if _, ok := data.Overrides[target]; ok {
			plan.add(DeleteOverrideOp{SeriesID: series.ID, Date: target})
		}
		return plan, nil
	}

	tail := series
	tail.ID = p.newID()
	tail.Anchor = all[idx]
	tail.Rule = remainingRule(series.Rule, total-idx)
	tail = applyFields(tail, fields)
	if fields.RuleChanged {
		tail.Rule = fields.Rule
	} else if total-idx == 1 {
		tail.Rule = nil
	}
	plan.add(InsertSeriesOp{Series: tail})

	if _, ok := data.Overrides[target]; ok {
		plan.add(DeleteOverrideOp{SeriesID: series.ID, Date: target})
	}
	plan.add(p.moveOccurrenceData(series, target, tail.ID, DateOf(tail.Anchor, loc), SeriesData{Notes: data.Notes, Paid: data.Paid})...)
	plan.add(migrateDataAfter(series.ID, tail.ID, target, data)...)

	// Before-side ops come last so the tail migrations above re-key their
	// rows ahead of any cascade on the original row.
	before := all[:idx]
	if len(before) == 1 {
		ops, _ := p.collapseInPlace(series, before[0], data, loc)
		plan.add(ops...)
	} else {
		truncated := series
		truncated.Rule = truncatedRule(series.Rule, target, loc)
		plan.add(UpdateSeriesOp{Series: truncated})
	}

	return plan, nil
}

// planAfterSide rebuilds the occurrences after a removed or extracted middle
// occurrence on a fresh row: a standalone lesson when exactly one remains, a
// continuation series otherwise.
func (p *Planner) planAfterSide(series Series, after []time.Time, target LocalDate, data SeriesData, loc *time.Location) []Op {
	if len(after) == 0 {
		return nil
	}

	if len(after) == 1 {
		return p.standaloneOnNewRow(series, after[0], data, loc)
	}

	tail := series
	tail.ID = p.newID()
	tail.Anchor = after[0]
	tail.Rule = remainingRule(series.Rule, len(after))

	ops := []Op{InsertSeriesOp{Series: tail}}
	ops = append(ops, migrateDataAfter(series.ID, tail.ID, target, data)...)
	return ops
}

// collapseInPlace turns the original row into a standalone lesson at the
// surviving occurrence, baking in any reschedule override. When the survivor
// itself is tombstoned the row is deleted instead; the second return value
// reports that case.
func (p *Planner) collapseInPlace(series Series, survivor time.Time, data SeriesData, loc *time.Location) ([]Op, bool) {
	key := DateOf(survivor, loc)

	override, hasOverride := data.Overrides[key]
	if hasOverride && override.Deleted() {
		return []Op{DeleteSeriesOp{SeriesID: series.ID}}, true
	}

	collapsed := series
	collapsed.Rule = nil
	collapsed.Anchor = survivor

	var ops []Op
	if hasOverride {
		collapsed.Anchor = *override.NewStart
		if override.DurationMinutes != nil {
			collapsed.DurationMinutes = *override.DurationMinutes
		}
		if override.Note != nil {
			collapsed.DefaultNote = override.Note
		}
		ops = append(ops, DeleteOverrideOp{SeriesID: series.ID, Date: key})
	}

	ops = append([]Op{UpdateSeriesOp{Series: collapsed}}, ops...)
	ops = append(ops, p.moveOccurrenceData(series, key, series.ID, DateOf(collapsed.Anchor, loc), SeriesData{Notes: data.Notes, Paid: data.Paid})...)
	return ops, false
}

// standaloneOnNewRow recreates a single surviving occurrence as a fresh
// non-recurring lesson row, carrying its override, note and payment links
// along. A tombstoned survivor yields no row at all.
func (p *Planner) standaloneOnNewRow(series Series, survivor time.Time, data SeriesData, loc *time.Location) []Op {
	key := DateOf(survivor, loc)

	override, hasOverride := data.Overrides[key]
	if hasOverride && override.Deleted() {
		return []Op{DeleteOverrideOp{SeriesID: series.ID, Date: key}}
	}

	row := Series{
		ID:              p.newID(),
		StudentID:       series.StudentID,
		Anchor:          survivor,
		DurationMinutes: series.DurationMinutes,
		DefaultNote:     series.DefaultNote,
	}

	var ops []Op
	if hasOverride {
		row.Anchor = *override.NewStart
		if override.DurationMinutes != nil {
			row.DurationMinutes = *override.DurationMinutes
		}
		if override.Note != nil {
			row.DefaultNote = override.Note
		}
		ops = append(ops, DeleteOverrideOp{SeriesID: series.ID, Date: key})
	}

	ops = append([]Op{InsertSeriesOp{Series: row}}, ops...)
	ops = append(ops, p.moveOccurrenceData(series, key, row.ID, DateOf(row.Anchor, loc), SeriesData{Notes: data.Notes, Paid: data.Paid})...)
	return ops
}

// standaloneForTarget extracts the target occurrence of an edit-single
// mutation onto a fresh non-recurring row carrying the edited fields, with
// the existing override and note baked in underneath them.
func (p *Planner) standaloneForTarget(series Series, rawStart time.Time, data SeriesData, fields EditFields, loc *time.Location) []Op {
	key := DateOf(rawStart, loc)

	row := Series{
		ID:              p.newID(),
		StudentID:       series.StudentID,
		Anchor:          rawStart,
		DurationMinutes: series.DurationMinutes,
		DefaultNote:     series.DefaultNote,
	}

	var ops []Op
	if override, ok := data.Overrides[key]; ok {
		row.Anchor = *override.NewStart
		if override.DurationMinutes != nil {
			row.DurationMinutes = *override.DurationMinutes
		}
		if override.Note != nil {
			row.DefaultNote = override.Note
		}
		ops = append(ops, DeleteOverrideOp{SeriesID: series.ID, Date: key})
	}
	if text, ok := data.Notes[key]; ok {
		row.DefaultNote = &text
		ops = append(ops, DeleteNoteOp{SeriesID: series.ID, Date: key})
	}

	row = applyFields(row, fields)

	ops = append([]Op{InsertSeriesOp{Series: row}}, ops...)
	if data.Paid[key] {
		ops = append(ops, MovePaymentLinksOp{
			SeriesID:    series.ID,
			Date:        key,
			NewSeriesID: row.ID,
			NewDate:     DateOf(row.Anchor, loc),
		})
	}
	return ops
}

// moveOccurrenceData re-keys the note and payment links of one occurrence.
// Overrides are not moved here; callers bake or delete them explicitly.
func (p *Planner) moveOccurrenceData(series Series, from LocalDate, newSeriesID string, to LocalDate, data SeriesData) []Op {
	if newSeriesID == series.ID && from == to {
		return nil
	}

	var ops []Op
	if text, ok := data.Notes[from]; ok {
		ops = append(ops,
			DeleteNoteOp{SeriesID: series.ID, Date: from},
			UpsertNoteOp{Note: Note{SeriesID: newSeriesID, Date: to, Text: text}},
		)
	}
	if data.Paid[from] {
		ops = append(ops, MovePaymentLinksOp{
			SeriesID:    series.ID,
			Date:        from,
			NewSeriesID: newSeriesID,
			NewDate:     to,
		})
	}
	return ops
}

// applyFields overlays edit fields on a series row. The recurrence rule is
// left alone; future-scope callers handle it separately.
func applyFields(series Series, fields EditFields) Series {
	if fields.Start != nil {
		series.Anchor = *fields.Start
	}
	if fields.DurationMinutes != nil {
		series.DurationMinutes = *fields.DurationMinutes
	}
	if fields.Note != nil {
		series.DefaultNote = fields.Note
	}
	return series
}

// remainingRule derives the rule for a series that keeps the last `remaining`
// occurrences of the original: count-bounded rules shrink, the others carry
// over unchanged.
func remainingRule(rule *recurrence.Rule, remaining int) *recurrence.Rule {
	if rule == nil {
		return nil
	}
	tail := *rule
	if tail.EndMode == recurrence.EndCount {
		tail.Count = remaining
	}
	return &tail
}

// truncatedRule rewrites a rule to end the day before the target occurrence.
func truncatedRule(rule *recurrence.Rule, target LocalDate, loc *time.Location) *recurrence.Rule {
	truncated := *rule
	truncated.EndMode = recurrence.EndUntil
	truncated.Until = recurrence.EndOfDay(target.AddDays(-1).StartOfDay(loc), loc)
	truncated.Count = 0
	return &truncated
}

// cleanupDataAt removes the override and note rows of a single removed
// occurrence. Payment links stay: a calendar edit never destroys a payment
// record.
func cleanupDataAt(seriesID string, date LocalDate, data SeriesData) []Op {
	var ops []Op
	if _, ok := data.Overrides[date]; ok {
		ops = append(ops, DeleteOverrideOp{SeriesID: seriesID, Date: date})
	}
	if _, ok := data.Notes[date]; ok {
		ops = append(ops, DeleteNoteOp{SeriesID: seriesID, Date: date})
	}
	return ops
}

// cleanupDataOnOrAfter removes override and note rows for every occurrence on
// or after the cutoff day.
func cleanupDataOnOrAfter(seriesID string, cutoff LocalDate, data SeriesData) []Op {
	var ops []Op
	for _, date := range sortedDates(data.Overrides) {
		if !date.Before(cutoff) {
			ops = append(ops, DeleteOverrideOp{SeriesID: seriesID, Date: date})
		}
	}
	for _, date := range sortedNoteDates(data.Notes) {
		if !date.Before(cutoff) {
			ops = append(ops, DeleteNoteOp{SeriesID: seriesID, Date: date})
		}
	}
	return ops
}

// migrateDataAfter re-keys overrides, notes and payment links strictly after
// the cutoff day onto a new series row, preserving their dates.
func migrateDataAfter(seriesID, newSeriesID string, cutoff LocalDate, data SeriesData) []Op {
	var ops []Op
	for _, date := range sortedDates(data.Overrides) {
		if date.After(cutoff) {
			moved := data.Overrides[date]
			moved.SeriesID = newSeriesID
			ops = append(ops,
				DeleteOverrideOp{SeriesID: seriesID, Date: date},
				UpsertOverrideOp{Override: moved},
			)
		}
	}
	for _, date := range sortedNoteDates(data.Notes) {
		if date.After(cutoff) {
			ops = append(ops,
				DeleteNoteOp{SeriesID: seriesID, Date: date},
				UpsertNoteOp{Note: Note{SeriesID: newSeriesID, Date: date, Text: data.Notes[date]}},
			)
		}
	}
	for _, date := range sortedPaidDates(data.Paid) {
		if date.After(cutoff) {
			ops = append(ops, MovePaymentLinksOp{
				SeriesID:    seriesID,
				Date:        date,
				NewSeriesID: newSeriesID,
				NewDate:     date,
			})
		}
	}
	return ops
}

func sortedDates(m map[LocalDate]Override) []LocalDate {
	dates := make([]LocalDate, 0, len(m))
	for date := range m {
		dates = append(dates, date)
	}
	sortLocalDates(dates)
	return dates
}

func sortedNoteDates(m map[LocalDate]string) []LocalDate {
	dates := make([]LocalDate, 0, len(m))
	for date := range m {
		dates = append(dates, date)
	}
	sortLocalDates(dates)
	return dates
}

func sortedPaidDates(m map[LocalDate]bool) []LocalDate {
	dates := make([]LocalDate, 0, len(m))
	for date, paid := range m {
		if paid {
			dates = append(dates, date)
		}
	}
	sortLocalDates(dates)
	return dates
}

func sortLocalDates(dates []LocalDate) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
