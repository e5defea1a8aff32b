package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/lesson-scheduler/internal/lessons"
	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/recurrence"
)

// SeriesStore captures the series persistence interactions needed by the service.
type SeriesStore interface {
	CreateSeries(ctx context.Context, series persistence.LessonSeries) error
	GetSeries(ctx context.Context, id string) (persistence.LessonSeries, error)
	ListSeries(ctx context.Context, filter persistence.SeriesFilter) ([]persistence.LessonSeries, error)
}

// OverrideStore exposes override reads and the direct write path used by moves.
type OverrideStore interface {
	UpsertOverride(ctx context.Context, override persistence.OccurrenceOverride) error
	DeleteOverride(ctx context.Context, seriesID, date string) error
	ListOverrides(ctx context.Context, seriesIDs []string) ([]persistence.OccurrenceOverride, error)
}

// NoteStore exposes per-occurrence note reads and writes.
type NoteStore interface {
	UpsertNote(ctx context.Context, note persistence.OccurrenceNote) error
	DeleteNote(ctx context.Context, seriesID, date string) error
	ListNotes(ctx context.Context, seriesIDs []string) ([]persistence.OccurrenceNote, error)
}

// PaymentStore exposes payment link reads and writes.
type PaymentStore interface {
	CreatePaymentLink(ctx context.Context, link persistence.PaymentLink) error
	ListPaymentLinks(ctx context.Context, seriesIDs []string) ([]persistence.PaymentLink, error)
}

// PlanApplier executes a mutation plan atomically.
type PlanApplier interface {
	ApplyPlan(ctx context.Context, plan lessons.Plan) error
}

// LessonServiceConfig bounds the unpaid finder.
type LessonServiceConfig struct {
	UnpaidHorizon time.Duration
	UnpaidCap     int
}

// LessonService orchestrates the recurrence engine and persistence for lesson
// operations.
type LessonService struct {
	series      SeriesStore
	overrides   OverrideStore
	notes       NoteStore
	payments    PaymentStore
	plans       PlanApplier
	expander    *recurrence.Expander
	planner     *lessons.Planner
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	config      LessonServiceConfig
}

// NewLessonService wires dependencies for lesson operations.
func NewLessonService(
	series SeriesStore,
	overrides OverrideStore,
	notes NoteStore,
	payments PaymentStore,
	plans PlanApplier,
	expander *recurrence.Expander,
	idGenerator func() string,
	now func() time.Time,
	logger *slog.Logger,
	config LessonServiceConfig,
) *LessonService {
	if expander == nil {
		expander = recurrence.NewExpander(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if config.UnpaidHorizon <= 0 {
		config.UnpaidHorizon = 365 * 24 * time.Hour
	}
	if config.UnpaidCap <= 0 {
		config.UnpaidCap = 50
	}
	return &LessonService{
		series:      series,
		overrides:   overrides,
		notes:       notes,
		payments:    payments,
		plans:       plans,
		expander:    expander,
		planner:     lessons.NewPlanner(expander, idGenerator),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		config:      config,
	}
}

// CreateLesson validates the request and stores a new standalone lesson or
// recurring series.
func (s *LessonService) CreateLesson(ctx context.Context, params CreateLessonParams) (lessons.Series, error) {
	if s == nil {
		return lessons.Series{}, fmt.Errorf("LessonService is nil")
	}

	vErr := &ValidationError{}
	if params.StudentID == "" {
		vErr.add("student_id", "student is required")
	}
	if params.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if params.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if params.Rule != nil {
		if err := params.Rule.Validate(); err != nil {
			vErr.add("rule", err.Error())
		}
	}
	if vErr.HasErrors() {
		return lessons.Series{}, vErr
	}

	series := lessons.Series{
		ID:              s.idGenerator(),
		StudentID:       params.StudentID,
		Anchor:          params.Start.In(s.expander.Location()),
		DurationMinutes: params.DurationMinutes,
		Rule:            params.Rule,
		DefaultNote:     params.Note,
	}

	row, err := s.seriesRow(series)
	if err != nil {
		return lessons.Series{}, err
	}
	if err := s.series.CreateSeries(ctx, row); err != nil {
		return lessons.Series{}, mapStoreError(err)
	}

	serviceLogger(ctx, s.logger, "lessons", "create", "series_id", series.ID).
		InfoContext(ctx, "lesson created", "recurring", series.Recurring())
	return series, nil
}

// ListOccurrences expands every series overlapping the window, applies
// overrides, notes and payment links, and returns the merged occurrence list
// ordered by start instant.
func (s *LessonService) ListOccurrences(ctx context.Context, params ListOccurrencesParams) ([]lessons.Occurrence, error) {
	if s == nil {
		return nil, fmt.Errorf("LessonService is nil")
	}
	if params.From.IsZero() || params.To.IsZero() || params.To.Before(params.From) {
		vErr := &ValidationError{}
		vErr.add("window", "from and to must form an ordered window")
		return nil, vErr
	}

	filter := persistence.SeriesFilter{
		StudentID:   params.StudentID,
		StartsAfter: &params.From,
		EndsBefore:  &params.To,
	}
	rows, err := s.series.ListSeries(ctx, filter)
	if err != nil {
		return nil, mapStoreError(err)
	}

	data, err := s.loadSeriesData(ctx, seriesIDs(rows))
	if err != nil {
		return nil, err
	}

	loc := s.expander.Location()
	var occurrences []lessons.Occurrence
	for _, row := range rows {
		series, err := s.domainSeries(row)
		if err != nil {
			return nil, err
		}
		raw, err := s.expander.Expand(series.Anchor, series.Rule, params.From, params.To)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, lessons.Resolve(series, raw, data[series.ID], loc)...)
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].SeriesID < occurrences[j].SeriesID
		}
		return occurrences[i].Start.Before(occurrences[j].Start)
	})
	return occurrences, nil
}

// EditOccurrence rewrites one occurrence or the occurrence and everything
// after it, splitting or collapsing the series as needed. The whole mutation
// applies atomically.
func (s *LessonService) EditOccurrence(ctx context.Context, params EditOccurrenceParams) error {
	if s == nil {
		return fmt.Errorf("LessonService is nil")
	}

	vErr := &ValidationError{}
	if params.Edit.DurationMinutes != nil && *params.Edit.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if params.Edit.RuleChanged && params.Edit.Rule != nil {
		if err := params.Edit.Rule.Validate(); err != nil {
			vErr.add("rule", err.Error())
		}
	}
	if params.Edit.RuleChanged && params.Scope == lessons.ScopeSingle {
		vErr.add("rule", "rule changes require future scope")
	}
	if vErr.HasErrors() {
		return vErr
	}

	fields := lessons.EditFields{
		Start:           params.Edit.Start,
		DurationMinutes: params.Edit.DurationMinutes,
		Note:            params.Edit.Note,
		Rule:            params.Edit.Rule,
		RuleChanged:     params.Edit.RuleChanged,
	}
	action := lessons.ActionFor(true, params.Scope)
	if err := s.applyMutation(ctx, action, params.SeriesID, params.Date, fields); err != nil {
		return err
	}

	serviceLogger(ctx, s.logger, "lessons", "edit_occurrence", "series_id", params.SeriesID).
		InfoContext(ctx, "occurrence edited", "date", params.Date.String(), "scope", params.Scope.String())
	return nil
}

// DeleteOccurrence removes one occurrence or the occurrence and everything
// after it. Payment links survive; only calendar rows are removed.
func (s *LessonService) DeleteOccurrence(ctx context.Context, params DeleteOccurrenceParams) error {
	if s == nil {
		return fmt.Errorf("LessonService is nil")
	}

	action := lessons.ActionFor(false, params.Scope)
	if err := s.applyMutation(ctx, action, params.SeriesID, params.Date, lessons.EditFields{}); err != nil {
		return err
	}

	serviceLogger(ctx, s.logger, "lessons", "delete_occurrence", "series_id", params.SeriesID).
		InfoContext(ctx, "occurrence deleted", "date", params.Date.String(), "scope", params.Scope.String())
	return nil
}

// HasFutureOccurrences reports whether the series has occurrences strictly
// after the given day. Callers use it to decide whether to offer a scope
// choice at all.
func (s *LessonService) HasFutureOccurrences(ctx context.Context, seriesID string, date lessons.LocalDate) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("LessonService is nil")
	}

	series, err := s.loadSeries(ctx, seriesID)
	if err != nil {
		return false, err
	}
	return s.planner.HasFutureOccurrences(series, date)
}

// MoveOccurrence reschedules one occurrence through the override table. An
// edit that lands the occurrence back on its generated slot deletes the
// override row instead of persisting a redundant one.
func (s *LessonService) MoveOccurrence(ctx context.Context, params MoveOccurrenceParams) error {
	if s == nil {
		return fmt.Errorf("LessonService is nil")
	}
	if params.DurationMinutes != nil && *params.DurationMinutes <= 0 {
		vErr := &ValidationError{}
		vErr.add("duration_minutes", "duration must be positive")
		return vErr
	}

	series, err := s.loadSeries(ctx, params.SeriesID)
	if err != nil {
		return err
	}
	raw, err := s.rawStart(series, params.Date)
	if err != nil {
		return err
	}

	data, err := s.loadSeriesData(ctx, []string{series.ID})
	if err != nil {
		return err
	}
	existing, hasExisting := data[series.ID].Overrides[params.Date]
	if hasExisting && existing.Deleted() {
		return &lessons.InvariantError{SeriesID: series.ID, Date: params.Date, Reason: "occurrence is already deleted"}
	}

	start := raw
	if hasExisting {
		start = *existing.NewStart
	}
	if params.NewStart != nil {
		start = params.NewStart.In(s.expander.Location())
	}

	candidate := lessons.Override{SeriesID: series.ID, Date: params.Date, NewStart: &start}
	if hasExisting {
		candidate.DurationMinutes = existing.DurationMinutes
		candidate.Note = existing.Note
	}
	if params.DurationMinutes != nil {
		candidate.DurationMinutes = params.DurationMinutes
	}
	if params.Note != nil {
		candidate.Note = params.Note
	}

	if lessons.RedundantOverride(series, raw, candidate) {
		if err := s.overrides.DeleteOverride(ctx, series.ID, params.Date.String()); err != nil {
			return mapStoreError(err)
		}
		return nil
	}

	row := persistence.OccurrenceOverride{
		SeriesID:        candidate.SeriesID,
		Date:            candidate.Date.String(),
		NewStart:        candidate.NewStart,
		DurationMinutes: candidate.DurationMinutes,
		Note:            candidate.Note,
	}
	if err := s.overrides.UpsertOverride(ctx, row); err != nil {
		return mapStoreError(err)
	}

	serviceLogger(ctx, s.logger, "lessons", "move_occurrence", "series_id", series.ID).
		InfoContext(ctx, "occurrence moved", "date", params.Date.String())
	return nil
}

// SetOccurrenceNote attaches or replaces a note on one occurrence.
func (s *LessonService) SetOccurrenceNote(ctx context.Context, seriesID string, date lessons.LocalDate, text string) error {
	if s == nil {
		return fmt.Errorf("LessonService is nil")
	}
	if text == "" {
		vErr := &ValidationError{}
		vErr.add("text", "note text is required")
		return vErr
	}

	series, err := s.loadSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	if _, err := s.rawStart(series, date); err != nil {
		return err
	}

	note := persistence.OccurrenceNote{SeriesID: seriesID, Date: date.String(), Text: text}
	if err := s.notes.UpsertNote(ctx, note); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// ClearOccurrenceNote removes the note of one occurrence, if present.
func (s *LessonService) ClearOccurrenceNote(ctx context.Context, seriesID string, date lessons.LocalDate) error {
	if s == nil {
		return fmt.Errorf("LessonService is nil")
	}

	if _, err := s.loadSeries(ctx, seriesID); err != nil {
		return err
	}
	if err := s.notes.DeleteNote(ctx, seriesID, date.String()); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// RecordPayment links one payment to a set of occurrences of a series. The
// payment ledger itself lives elsewhere; only the link is stored here.
func (s *LessonService) RecordPayment(ctx context.Context, params RecordPaymentParams) error {
	if s == nil {
		return fmt.Errorf("LessonService is nil")
	}

	vErr := &ValidationError{}
	if params.PaymentID == "" {
		vErr.add("payment_id", "payment id is required")
	}
	if len(params.Dates) == 0 {
		vErr.add("dates", "at least one occurrence date is required")
	}
	if params.AmountCents <= 0 {
		vErr.add("amount_cents", "amount must be positive")
	}
	if vErr.HasErrors() {
		return vErr
	}

	series, err := s.loadSeries(ctx, params.SeriesID)
	if err != nil {
		return err
	}
	if params.StudentID != "" && series.StudentID != params.StudentID {
		vErr := &ValidationError{}
		vErr.add("student_id", "lesson belongs to a different student")
		return vErr
	}

	for _, date := range params.Dates {
		if _, err := s.rawStart(series, date); err != nil {
			return err
		}
	}

	for _, date := range params.Dates {
		link := persistence.PaymentLink{
			SeriesID:    series.ID,
			Date:        date.String(),
			PaymentID:   params.PaymentID,
			AmountCents: params.AmountCents,
		}
		if err := s.payments.CreatePaymentLink(ctx, link); err != nil {
			return mapStoreError(err)
		}
	}

	serviceLogger(ctx, s.logger, "lessons", "record_payment", "series_id", series.ID).
		InfoContext(ctx, "payment recorded", "payment_id", params.PaymentID, "occurrences", len(params.Dates))
	return nil
}

// FindUnpaid returns the student's unpaid occurrences from each series anchor
// through now plus the configured horizon, ascending, capped per series.
func (s *LessonService) FindUnpaid(ctx context.Context, studentID string) ([]lessons.Occurrence, error) {
	if s == nil {
		return nil, fmt.Errorf("LessonService is nil")
	}
	if studentID == "" {
		vErr := &ValidationError{}
		vErr.add("student_id", "student is required")
		return nil, vErr
	}

	rows, err := s.series.ListSeries(ctx, persistence.SeriesFilter{StudentID: studentID})
	if err != nil {
		return nil, mapStoreError(err)
	}

	data, err := s.loadSeriesData(ctx, seriesIDs(rows))
	if err != nil {
		return nil, err
	}

	now := s.now()
	var unpaid []lessons.Occurrence
	for _, row := range rows {
		series, err := s.domainSeries(row)
		if err != nil {
			return nil, err
		}
		found, err := lessons.UnpaidOccurrences(s.expander, series, data[series.ID], now, s.config.UnpaidHorizon, s.config.UnpaidCap)
		if err != nil {
			return nil, err
		}
		unpaid = append(unpaid, found...)
	}

	sort.SliceStable(unpaid, func(i, j int) bool {
		if unpaid[i].Start.Equal(unpaid[j].Start) {
			return unpaid[i].SeriesID < unpaid[j].SeriesID
		}
		return unpaid[i].Start.Before(unpaid[j].Start)
	})
	return unpaid, nil
}

func (s *LessonService) applyMutation(ctx context.Context, action lessons.Action, seriesID string, date lessons.LocalDate, fields lessons.EditFields) error {
	series, err := s.loadSeries(ctx, seriesID)
	if err != nil {
		return err
	}

	data, err := s.loadSeriesData(ctx, []string{series.ID})
	if err != nil {
		return err
	}

	plan, err := s.planner.PlanMutation(action, series, date, data[series.ID], fields)
	if err != nil {
		return err
	}
	if err := s.plans.ApplyPlan(ctx, plan); err != nil {
		return mapStoreError(err)
	}
	return nil
}

func (s *LessonService) loadSeries(ctx context.Context, id string) (lessons.Series, error) {
	row, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return lessons.Series{}, mapStoreError(err)
	}
	return s.domainSeries(row)
}

// domainSeries decodes one stored row. A rule that fails to decode surfaces
// as a DecodeError; it is never silently treated as non-recurring.
func (s *LessonService) domainSeries(row persistence.LessonSeries) (lessons.Series, error) {
	series := lessons.Series{
		ID:              row.ID,
		StudentID:       row.StudentID,
		Anchor:          row.Anchor.In(s.expander.Location()),
		DurationMinutes: row.DurationMinutes,
		DefaultNote:     row.DefaultNote,
	}
	if row.RecurrenceRule != nil {
		rule, err := recurrence.Decode(*row.RecurrenceRule, s.expander.Location())
		if err != nil {
			return lessons.Series{}, err
		}
		series.Rule = &rule
	}
	return series, nil
}

func (s *LessonService) seriesRow(series lessons.Series) (persistence.LessonSeries, error) {
	row := persistence.LessonSeries{
		ID:              series.ID,
		StudentID:       series.StudentID,
		Anchor:          series.Anchor,
		DurationMinutes: series.DurationMinutes,
		DefaultNote:     series.DefaultNote,
	}
	if series.Rule != nil {
		encoded, err := recurrence.Encode(*series.Rule, s.expander.Location())
		if err != nil {
			return persistence.LessonSeries{}, err
		}
		row.RecurrenceRule = &encoded
	}
	return row, nil
}

// loadSeriesData fetches and groups the per-occurrence rows of the given
// series in three bulk reads.
func (s *LessonService) loadSeriesData(ctx context.Context, ids []string) (map[string]lessons.SeriesData, error) {
	data := make(map[string]lessons.SeriesData, len(ids))
	if len(ids) == 0 {
		return data, nil
	}

	forSeries := func(id string) lessons.SeriesData {
		entry, ok := data[id]
		if !ok {
			entry = lessons.SeriesData{
				Overrides: make(map[lessons.LocalDate]lessons.Override),
				Notes:     make(map[lessons.LocalDate]string),
				Paid:      make(map[lessons.LocalDate]bool),
			}
			data[id] = entry
		}
		return entry
	}

	overrides, err := s.overrides.ListOverrides(ctx, ids)
	if err != nil {
		return nil, mapStoreError(err)
	}
	for _, row := range overrides {
		date, err := lessons.ParseLocalDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("stored override has invalid date: %w", err)
		}
		forSeries(row.SeriesID).Overrides[date] = lessons.Override{
			SeriesID:        row.SeriesID,
			Date:            date,
			NewStart:        row.NewStart,
			DurationMinutes: row.DurationMinutes,
			Note:            row.Note,
		}
	}

	notes, err := s.notes.ListNotes(ctx, ids)
	if err != nil {
		return nil, mapStoreError(err)
	}
	for _, row := range notes {
		date, err := lessons.ParseLocalDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("stored note has invalid date: %w", err)
		}
		forSeries(row.SeriesID).Notes[date] = row.Text
	}

	links, err := s.payments.ListPaymentLinks(ctx, ids)
	if err != nil {
		return nil, mapStoreError(err)
	}
	for _, row := range links {
		date, err := lessons.ParseLocalDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("stored payment link has invalid date: %w", err)
		}
		forSeries(row.SeriesID).Paid[date] = true
	}

	return data, nil
}

// rawStart returns the unmodified generated instant of the occurrence on the
// given day, or an InvariantError when the series has no occurrence there.
func (s *LessonService) rawStart(series lessons.Series, date lessons.LocalDate) (time.Time, error) {
	loc := s.expander.Location()

	if !series.Recurring() {
		if lessons.DateOf(series.Anchor, loc) != date {
			return time.Time{}, &lessons.InvariantError{SeriesID: series.ID, Date: date, Reason: "occurrence not found in expanded series"}
		}
		return series.Anchor.In(loc), nil
	}

	end := s.expander.EffectiveEnd(series.Anchor, series.Rule)
	all, err := s.expander.Expand(series.Anchor, series.Rule, series.Anchor, end)
	if err != nil {
		return time.Time{}, err
	}
	for _, start := range all {
		if lessons.DateOf(start, loc) == date {
			return start, nil
		}
	}
	return time.Time{}, &lessons.InvariantError{SeriesID: series.ID, Date: date, Reason: "occurrence not found in expanded series"}
}

func seriesIDs(rows []persistence.LessonSeries) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("duration_minutes", "duration must be positive")
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("series_id", "lesson does not exist")
		return vErr
	}
	return err
}
