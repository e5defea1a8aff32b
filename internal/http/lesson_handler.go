package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/lesson-scheduler/internal/application"
	"github.com/example/lesson-scheduler/internal/lessons"
	"github.com/example/lesson-scheduler/internal/recurrence"
)

type lessonService interface {
	CreateLesson(ctx context.Context, params application.CreateLessonParams) (lessons.Series, error)
	ListOccurrences(ctx context.Context, params application.ListOccurrencesParams) ([]lessons.Occurrence, error)
	EditOccurrence(ctx context.Context, params application.EditOccurrenceParams) error
	DeleteOccurrence(ctx context.Context, params application.DeleteOccurrenceParams) error
	HasFutureOccurrences(ctx context.Context, seriesID string, date lessons.LocalDate) (bool, error)
	MoveOccurrence(ctx context.Context, params application.MoveOccurrenceParams) error
	SetOccurrenceNote(ctx context.Context, seriesID string, date lessons.LocalDate, text string) error
	ClearOccurrenceNote(ctx context.Context, seriesID string, date lessons.LocalDate) error
	RecordPayment(ctx context.Context, params application.RecordPaymentParams) error
	FindUnpaid(ctx context.Context, studentID string) ([]lessons.Occurrence, error)
}

// LessonHandler exposes lesson and occurrence operations over JSON.
type LessonHandler struct {
	service   lessonService
	location  *time.Location
	responder responder
}

// NewLessonHandler wires the handler. The location is the service's local
// zone; request dates and rule boundaries are interpreted in it.
func NewLessonHandler(service lessonService, location *time.Location, logger *slog.Logger) *LessonHandler {
	if location == nil {
		location = time.UTC
	}
	return &LessonHandler{service: service, location: location, responder: newResponder(logger)}
}

func (h *LessonHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req lessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	rule, err := req.Rule.toRule(h.location)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	series, err := h.service.CreateLesson(r.Context(), application.CreateLessonParams{
		StudentID:       strings.TrimSpace(req.StudentID),
		Start:           parseTime(req.Start),
		DurationMinutes: req.DurationMinutes,
		Note:            req.Note,
		Rule:            rule,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toLessonDTO(series, h.location))
}

func (h *LessonHandler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	from := parseTime(query.Get("from"))
	to := parseTime(query.Get("to"))
	if from.IsZero() || to.IsZero() || to.Before(from) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidWindow)
		return
	}

	occurrences, err := h.service.ListOccurrences(r.Context(), application.ListOccurrencesParams{
		From:      from,
		To:        to,
		StudentID: strings.TrimSpace(query.Get("student_id")),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, occurrencesResponse{
		Occurrences: toOccurrenceDTOs(occurrences),
	})
}

func (h *LessonHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, date, ok := h.occurrenceKey(w, r)
	if !ok {
		return
	}

	var req editOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	scope, err := parseScope(req.Scope)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	edit := application.OccurrenceEdit{
		DurationMinutes: req.DurationMinutes,
		Note:            req.Note,
		RuleChanged:     req.RuleChanged,
	}
	if req.Start != nil {
		start := parseTime(*req.Start)
		if start.IsZero() {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		edit.Start = &start
	}
	if req.RuleChanged {
		rule, err := req.Rule.toRule(h.location)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
			return
		}
		edit.Rule = rule
	}

	err = h.service.EditOccurrence(r.Context(), application.EditOccurrenceParams{
		SeriesID: seriesID,
		Date:     date,
		Scope:    scope,
		Edit:     edit,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *LessonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, date, ok := h.occurrenceKey(w, r)
	if !ok {
		return
	}

	scope, err := parseScope(r.URL.Query().Get("scope"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	err = h.service.DeleteOccurrence(r.Context(), application.DeleteOccurrenceParams{
		SeriesID: seriesID,
		Date:     date,
		Scope:    scope,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *LessonHandler) HasFuture(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, date, ok := h.occurrenceKey(w, r)
	if !ok {
		return
	}

	hasFuture, err := h.service.HasFutureOccurrences(r.Context(), seriesID, date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, hasFutureResponse{HasFuture: hasFuture})
}

func (h *LessonHandler) Move(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, date, ok := h.occurrenceKey(w, r)
	if !ok {
		return
	}

	var req moveOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params := application.MoveOccurrenceParams{
		SeriesID:        seriesID,
		Date:            date,
		DurationMinutes: req.DurationMinutes,
		Note:            req.Note,
	}
	if req.NewStart != nil {
		start := parseTime(*req.NewStart)
		if start.IsZero() {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		params.NewStart = &start
	}

	if err := h.service.MoveOccurrence(r.Context(), params); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *LessonHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, date, ok := h.occurrenceKey(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if err := h.service.SetOccurrenceNote(r.Context(), seriesID, date, strings.TrimSpace(req.Text)); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *LessonHandler) ClearNote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, date, ok := h.occurrenceKey(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearOccurrenceNote(r.Context(), seriesID, date); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *LessonHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	dates := make([]lessons.LocalDate, 0, len(req.Dates))
	for _, raw := range req.Dates {
		date, err := lessons.ParseLocalDate(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		dates = append(dates, date)
	}

	err := h.service.RecordPayment(r.Context(), application.RecordPaymentParams{
		StudentID:   strings.TrimSpace(req.StudentID),
		SeriesID:    strings.TrimSpace(req.SeriesID),
		Dates:       dates,
		PaymentID:   strings.TrimSpace(req.PaymentID),
		AmountCents: req.AmountCents,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, nil)
}

func (h *LessonHandler) Unpaid(w http.ResponseWriter, r *http.Request, studentID string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if strings.TrimSpace(studentID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStudentID)
		return
	}

	occurrences, err := h.service.FindUnpaid(r.Context(), studentID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, occurrencesResponse{
		Occurrences: toOccurrenceDTOs(occurrences),
	})
}

func (h *LessonHandler) occurrenceKey(w http.ResponseWriter, r *http.Request) (string, lessons.LocalDate, bool) {
	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return "", lessons.LocalDate{}, false
	}
	date, ok := DateFromContext(r.Context())
	if !ok || date.IsZero() {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return "", lessons.LocalDate{}, false
	}
	return seriesID, date, true
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}

func parseScope(value string) (lessons.Scope, error) {
	switch strings.TrimSpace(value) {
	case "", "single":
		return lessons.ScopeSingle, nil
	case "future":
		return lessons.ScopeFuture, nil
	default:
		return lessons.ScopeSingle, errInvalidScope
	}
}

type lessonRequest struct {
	StudentID       string   `json:"student_id"`
	Start           string   `json:"start"`
	DurationMinutes int      `json:"duration_minutes"`
	Note            *string  `json:"note,omitempty"`
	Rule            *ruleDTO `json:"rule,omitempty"`
}

type editOccurrenceRequest struct {
	Scope           string   `json:"scope"`
	Start           *string  `json:"start,omitempty"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	Note            *string  `json:"note,omitempty"`
	Rule            *ruleDTO `json:"rule,omitempty"`
	RuleChanged     bool     `json:"rule_changed"`
}

type moveOccurrenceRequest struct {
	NewStart        *string `json:"new_start,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Note            *string `json:"note,omitempty"`
}

type noteRequest struct {
	Text string `json:"text"`
}

type paymentRequest struct {
	StudentID   string   `json:"student_id"`
	SeriesID    string   `json:"series_id"`
	Dates       []string `json:"dates"`
	PaymentID   string   `json:"payment_id"`
	AmountCents int64    `json:"amount_cents"`
}

type ruleDTO struct {
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval"`
	Until     string `json:"until,omitempty"`
	Count     int    `json:"count,omitempty"`
}

var errInvalidRule = errors.New("invalid recurrence rule")

func (d *ruleDTO) toRule(loc *time.Location) (*recurrence.Rule, error) {
	if d == nil {
		return nil, nil
	}

	rule := recurrence.Rule{Interval: d.Interval}
	if rule.Interval == 0 {
		rule.Interval = 1
	}

	switch strings.ToLower(strings.TrimSpace(d.Frequency)) {
	case "daily":
		rule.Frequency = recurrence.FrequencyDaily
	case "weekly":
		rule.Frequency = recurrence.FrequencyWeekly
	case "monthly":
		rule.Frequency = recurrence.FrequencyMonthly
	default:
		return nil, errInvalidRule
	}

	hasUntil := strings.TrimSpace(d.Until) != ""
	switch {
	case hasUntil && d.Count > 0:
		return nil, errInvalidRule
	case hasUntil:
		day, err := lessons.ParseLocalDate(d.Until)
		if err != nil {
			return nil, errInvalidRule
		}
		rule.EndMode = recurrence.EndUntil
		rule.Until = recurrence.EndOfDay(day.StartOfDay(loc), loc)
	case d.Count > 0:
		rule.EndMode = recurrence.EndCount
		rule.Count = d.Count
	default:
		rule.EndMode = recurrence.EndNever
	}

	if err := rule.Validate(); err != nil {
		return nil, errInvalidRule
	}
	return &rule, nil
}

func toRuleDTO(rule *recurrence.Rule, loc *time.Location) *ruleDTO {
	if rule == nil {
		return nil
	}
	dto := &ruleDTO{
		Frequency: rule.Frequency.String(),
		Interval:  rule.Interval,
	}
	switch rule.EndMode {
	case recurrence.EndUntil:
		dto.Until = lessons.DateOf(rule.Until, loc).String()
	case recurrence.EndCount:
		dto.Count = rule.Count
	}
	return dto
}

type lessonDTO struct {
	ID              string   `json:"id"`
	StudentID       string   `json:"student_id"`
	Start           string   `json:"start"`
	DurationMinutes int      `json:"duration_minutes"`
	Note            *string  `json:"note,omitempty"`
	Rule            *ruleDTO `json:"rule,omitempty"`
	Recurring       bool     `json:"recurring"`
}

func toLessonDTO(series lessons.Series, loc *time.Location) lessonDTO {
	return lessonDTO{
		ID:              series.ID,
		StudentID:       series.StudentID,
		Start:           series.Anchor.Format(time.RFC3339),
		DurationMinutes: series.DurationMinutes,
		Note:            series.DefaultNote,
		Rule:            toRuleDTO(series.Rule, loc),
		Recurring:       series.Recurring(),
	}
}

type occurrenceDTO struct {
	SeriesID        string  `json:"series_id"`
	StudentID       string  `json:"student_id"`
	Date            string  `json:"date"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	DurationMinutes int     `json:"duration_minutes"`
	Note            *string `json:"note,omitempty"`
	Paid            bool    `json:"paid"`
	Recurring       bool    `json:"recurring"`
}

func toOccurrenceDTOs(occurrences []lessons.Occurrence) []occurrenceDTO {
	dtos := make([]occurrenceDTO, 0, len(occurrences))
	for _, occ := range occurrences {
		dtos = append(dtos, occurrenceDTO{
			SeriesID:        occ.SeriesID,
			StudentID:       occ.StudentID,
			Date:            occ.Date.String(),
			Start:           occ.Start.Format(time.RFC3339),
			End:             occ.End().Format(time.RFC3339),
			DurationMinutes: occ.DurationMinutes,
			Note:            occ.Note,
			Paid:            occ.Paid,
			Recurring:       occ.Recurring,
		})
	}
	return dtos
}

type occurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type hasFutureResponse struct {
	HasFuture bool `json:"has_future"`
}
