package http

import (
	"context"
	"log/slog"

	"github.com/example/lesson-scheduler/internal/lessons"
	"github.com/example/lesson-scheduler/internal/logging"
)

type contextKey string

const (
	seriesIDContextKey contextKey = "series_id"
	dateContextKey     contextKey = "occurrence_date"
)

// ContextWithSeriesID injects the lesson series identifier resolved from the request path.
func ContextWithSeriesID(ctx context.Context, seriesID string) context.Context {
	return context.WithValue(ctx, seriesIDContextKey, seriesID)
}

// SeriesIDFromContext extracts a series identifier previously associated with the context.
func SeriesIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(seriesIDContextKey).(string)
	return id, ok
}

// ContextWithDate injects the occurrence date resolved from the request path.
func ContextWithDate(ctx context.Context, date lessons.LocalDate) context.Context {
	return context.WithValue(ctx, dateContextKey, date)
}

// DateFromContext extracts an occurrence date previously associated with the context.
func DateFromContext(ctx context.Context) (lessons.LocalDate, bool) {
	date, ok := ctx.Value(dateContextKey).(lessons.LocalDate)
	return date, ok
}

// ContextWithLogger attaches a request scoped logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
