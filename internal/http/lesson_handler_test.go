package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lesson-scheduler/internal/application"
	"github.com/example/lesson-scheduler/internal/lessons"
	"github.com/example/lesson-scheduler/internal/recurrence"
)

type stubService struct {
	createParams  application.CreateLessonParams
	listParams    application.ListOccurrencesParams
	editParams    application.EditOccurrenceParams
	deleteParams  application.DeleteOccurrenceParams
	moveParams    application.MoveOccurrenceParams
	paymentParams application.RecordPaymentParams
	noteSeriesID  string
	noteDate      lessons.LocalDate
	noteText      string
	unpaidStudent string

	createResult lessons.Series
	listResult   []lessons.Occurrence
	hasFuture    bool
	err          error
}

func (s *stubService) CreateLesson(_ context.Context, params application.CreateLessonParams) (lessons.Series, error) {
	s.createParams = params
	return s.createResult, s.err
}

func (s *stubService) ListOccurrences(_ context.Context, params application.ListOccurrencesParams) ([]lessons.Occurrence, error) {
	s.listParams = params
	return s.listResult, s.err
}

func (s *stubService) EditOccurrence(_ context.Context, params application.EditOccurrenceParams) error {
	s.editParams = params
	return s.err
}

func (s *stubService) DeleteOccurrence(_ context.Context, params application.DeleteOccurrenceParams) error {
	s.deleteParams = params
	return s.err
}

func (s *stubService) HasFutureOccurrences(_ context.Context, seriesID string, date lessons.LocalDate) (bool, error) {
	s.noteSeriesID = seriesID
	s.noteDate = date
	return s.hasFuture, s.err
}

func (s *stubService) MoveOccurrence(_ context.Context, params application.MoveOccurrenceParams) error {
	s.moveParams = params
	return s.err
}

func (s *stubService) SetOccurrenceNote(_ context.Context, seriesID string, date lessons.LocalDate, text string) error {
	s.noteSeriesID = seriesID
	s.noteDate = date
	s.noteText = text
	return s.err
}

func (s *stubService) ClearOccurrenceNote(_ context.Context, seriesID string, date lessons.LocalDate) error {
	s.noteSeriesID = seriesID
	s.noteDate = date
	return s.err
}

func (s *stubService) RecordPayment(_ context.Context, params application.RecordPaymentParams) error {
	s.paymentParams = params
	return s.err
}

func (s *stubService) FindUnpaid(_ context.Context, studentID string) ([]lessons.Occurrence, error) {
	s.unpaidStudent = studentID
	return s.listResult, s.err
}

func newTestRouter(service *stubService) http.Handler {
	handler := NewLessonHandler(service, time.UTC, nil)
	return NewRouter(RouterConfig{Lessons: handler})
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateLessonEndpoint(t *testing.T) {
	service := &stubService{
		createResult: lessons.Series{
			ID:              "series-1",
			StudentID:       "student-1",
			Anchor:          time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
			DurationMinutes: 60,
			Rule: &recurrence.Rule{
				Frequency: recurrence.FrequencyWeekly,
				Interval:  1,
				EndMode:   recurrence.EndCount,
				Count:     10,
			},
		},
	}
	router := newTestRouter(service)

	body := `{
		"student_id": "student-1",
		"start": "2025-03-03T10:00:00Z",
		"duration_minutes": 60,
		"rule": {"frequency": "weekly", "interval": 1, "count": 10}
	}`
	rec := doRequest(t, router, http.MethodPost, "/lessons", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "student-1", service.createParams.StudentID)
	assert.Equal(t, 60, service.createParams.DurationMinutes)
	require.NotNil(t, service.createParams.Rule)
	assert.Equal(t, recurrence.FrequencyWeekly, service.createParams.Rule.Frequency)
	assert.Equal(t, 10, service.createParams.Rule.Count)

	var dto lessonDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "series-1", dto.ID)
	assert.True(t, dto.Recurring)
	require.NotNil(t, dto.Rule)
	assert.Equal(t, "weekly", dto.Rule.Frequency)
}

func TestCreateLessonRejectsMalformedBody(t *testing.T) {
	rec := doRequest(t, newTestRouter(&stubService{}), http.MethodPost, "/lessons", `{"start": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLessonRejectsInvalidRule(t *testing.T) {
	body := `{
		"student_id": "student-1",
		"start": "2025-03-03T10:00:00Z",
		"duration_minutes": 60,
		"rule": {"frequency": "weekly", "count": 5, "until": "2025-06-01"}
	}`
	rec := doRequest(t, newTestRouter(&stubService{}), http.MethodPost, "/lessons", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLessonRuleUntilIsLocalEndOfDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	service := &stubService{}
	handler := NewLessonHandler(service, tokyo, nil)
	router := NewRouter(RouterConfig{Lessons: handler})

	body := `{
		"student_id": "student-1",
		"start": "2025-03-03T10:00:00+09:00",
		"duration_minutes": 60,
		"rule": {"frequency": "weekly", "until": "2025-06-01"}
	}`
	rec := doRequest(t, router, http.MethodPost, "/lessons", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, service.createParams.Rule)
	until := service.createParams.Rule.Until
	assert.Equal(t, 2025, until.Year())
	assert.Equal(t, time.June, until.Month())
	assert.Equal(t, 1, until.Day())
	assert.Equal(t, 23, until.Hour())
	assert.Equal(t, "Asia/Tokyo", until.Location().String())
}

func TestListOccurrencesEndpoint(t *testing.T) {
	note := "bring workbook"
	service := &stubService{
		listResult: []lessons.Occurrence{
			{
				SeriesID:        "series-1",
				StudentID:       "student-1",
				Date:            lessons.LocalDate{Year: 2025, Month: time.March, Day: 3},
				Start:           time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
				DurationMinutes: 60,
				Note:            &note,
				Paid:            true,
				Recurring:       true,
			},
		},
	}
	router := newTestRouter(service)

	rec := doRequest(t, router, http.MethodGet,
		"/occurrences?from=2025-03-01T00:00:00Z&to=2025-03-31T00:00:00Z&student_id=student-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", service.listParams.StudentID)

	var resp occurrencesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Occurrences, 1)
	occ := resp.Occurrences[0]
	assert.Equal(t, "2025-03-03", occ.Date)
	assert.Equal(t, "2025-03-03T11:00:00Z", occ.End)
	assert.True(t, occ.Paid)
}

func TestListOccurrencesRejectsBadWindow(t *testing.T) {
	router := newTestRouter(&stubService{})

	cases := map[string]string{
		"missing from": "/occurrences?to=2025-03-31T00:00:00Z",
		"missing to":   "/occurrences?from=2025-03-01T00:00:00Z",
		"reversed":     "/occurrences?from=2025-03-31T00:00:00Z&to=2025-03-01T00:00:00Z",
		"unparseable":  "/occurrences?from=yesterday&to=tomorrow",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestEditOccurrenceEndpoint(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(service)

	body := `{"scope": "future", "duration_minutes": 90}`
	rec := doRequest(t, router, http.MethodPatch, "/lessons/series-1/occurrences/2025-03-10", body)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "series-1", service.editParams.SeriesID)
	assert.Equal(t, "2025-03-10", service.editParams.Date.String())
	assert.Equal(t, lessons.ScopeFuture, service.editParams.Scope)
	require.NotNil(t, service.editParams.Edit.DurationMinutes)
	assert.Equal(t, 90, *service.editParams.Edit.DurationMinutes)
}

func TestEditOccurrenceDefaultsToSingleScope(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(service)

	rec := doRequest(t, router, http.MethodPatch, "/lessons/series-1/occurrences/2025-03-10",
		`{"start": "2025-03-10T14:00:00Z"}`)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, lessons.ScopeSingle, service.editParams.Scope)
	require.NotNil(t, service.editParams.Edit.Start)
	assert.Equal(t, 14, service.editParams.Edit.Start.Hour())
}

func TestEditOccurrenceRejectsUnknownScope(t *testing.T) {
	rec := doRequest(t, newTestRouter(&stubService{}), http.MethodPatch,
		"/lessons/series-1/occurrences/2025-03-10", `{"scope": "everything"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOccurrenceEndpoint(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(service)

	rec := doRequest(t, router, http.MethodDelete,
		"/lessons/series-1/occurrences/2025-03-10?scope=future", "")

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "series-1", service.deleteParams.SeriesID)
	assert.Equal(t, lessons.ScopeFuture, service.deleteParams.Scope)
}

func TestHasFutureEndpoint(t *testing.T) {
	service := &stubService{hasFuture: true}
	router := newTestRouter(service)

	rec := doRequest(t, router, http.MethodGet,
		"/lessons/series-1/occurrences/2025-03-10/has-future", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp hasFutureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasFuture)
}

func TestMoveOccurrenceEndpoint(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(service)

	rec := doRequest(t, router, http.MethodPost,
		"/lessons/series-1/occurrences/2025-03-10/move",
		`{"new_start": "2025-03-10T15:30:00Z", "duration_minutes": 45}`)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "series-1", service.moveParams.SeriesID)
	require.NotNil(t, service.moveParams.NewStart)
	assert.Equal(t, 15, service.moveParams.NewStart.Hour())
	require.NotNil(t, service.moveParams.DurationMinutes)
	assert.Equal(t, 45, *service.moveParams.DurationMinutes)
}

func TestNoteEndpoints(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(service)

	rec := doRequest(t, router, http.MethodPut,
		"/lessons/series-1/occurrences/2025-03-10/note", `{"text": "  bring scales  "}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "bring scales", service.noteText)
	assert.Equal(t, "2025-03-10", service.noteDate.String())

	rec = doRequest(t, router, http.MethodDelete,
		"/lessons/series-1/occurrences/2025-03-10/note", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecordPaymentEndpoint(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(service)

	body := `{
		"student_id": "student-1",
		"series_id": "series-1",
		"dates": ["2025-03-03", "2025-03-10"],
		"payment_id": "pay-1",
		"amount_cents": 5000
	}`
	rec := doRequest(t, router, http.MethodPost, "/payments", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "pay-1", service.paymentParams.PaymentID)
	require.Len(t, service.paymentParams.Dates, 2)
	assert.Equal(t, "2025-03-03", service.paymentParams.Dates[0].String())
}

func TestRecordPaymentRejectsBadDate(t *testing.T) {
	body := `{"series_id": "series-1", "dates": ["03/10/2025"], "payment_id": "pay-1", "amount_cents": 5000}`
	rec := doRequest(t, newTestRouter(&stubService{}), http.MethodPost, "/payments", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnpaidEndpoint(t *testing.T) {
	service := &stubService{
		listResult: []lessons.Occurrence{
			{
				SeriesID:        "series-1",
				StudentID:       "student-1",
				Date:            lessons.LocalDate{Year: 2025, Month: time.March, Day: 10},
				Start:           time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC),
				DurationMinutes: 60,
				Recurring:       true,
			},
		},
	}
	router := newTestRouter(service)

	rec := doRequest(t, router, http.MethodGet, "/students/student-1/unpaid", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", service.unpaidStudent)

	var resp occurrencesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Occurrences, 1)
	assert.False(t, resp.Occurrences[0].Paid)
}

func TestRouterRejectsUnknownPaths(t *testing.T) {
	router := newTestRouter(&stubService{})

	cases := map[string]string{
		"bad date":        "/lessons/series-1/occurrences/not-a-date",
		"missing segment": "/lessons/series-1/occurrences",
		"unknown sub":     "/lessons/series-1/occurrences/2025-03-10/archive",
		"bad student":     "/students//unpaid",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, target, "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := newTestRouter(&stubService{})

	rec := doRequest(t, router, http.MethodPut, "/lessons/series-1/occurrences/2025-03-10", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "PATCH, DELETE", rec.Header().Get("Allow"))

	rec = doRequest(t, router, http.MethodGet, "/lessons", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
}

func TestServiceErrorMapping(t *testing.T) {
	t.Run("not found maps to 404", func(t *testing.T) {
		service := &stubService{err: application.ErrNotFound}
		rec := doRequest(t, newTestRouter(service), http.MethodDelete,
			"/lessons/series-1/occurrences/2025-03-10", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("validation maps to 422 with field errors", func(t *testing.T) {
		vErr := &application.ValidationError{FieldErrors: map[string]string{
			"duration_minutes": "duration must be positive",
		}}
		service := &stubService{err: vErr}
		rec := doRequest(t, newTestRouter(service), http.MethodPatch,
			"/lessons/series-1/occurrences/2025-03-10", `{"duration_minutes": -1}`)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Errors, "duration_minutes")
	})

	t.Run("invariant violation maps to 409", func(t *testing.T) {
		service := &stubService{err: &lessons.InvariantError{
			SeriesID: "series-1",
			Date:     lessons.LocalDate{Year: 2025, Month: time.March, Day: 11},
			Reason:   "occurrence not found in expanded series",
		}}
		rec := doRequest(t, newTestRouter(service), http.MethodDelete,
			"/lessons/series-1/occurrences/2025-03-11", "")

		require.Equal(t, http.StatusConflict, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "OCCURRENCE_CONFLICT", resp.ErrorCode)
	})

	t.Run("undecodable stored rule maps to 500", func(t *testing.T) {
		service := &stubService{err: &recurrence.DecodeError{Encoded: "FREQ=BOGUS", Reason: "unsupported frequency"}}
		rec := doRequest(t, newTestRouter(service), http.MethodGet,
			"/occurrences?from=2025-03-01T00:00:00Z&to=2025-03-31T00:00:00Z", "")

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "RULE_DECODE_FAILED", resp.ErrorCode)
	})
}
