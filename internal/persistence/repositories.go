package persistence

import (
	"context"
	"time"
)

// SeriesFilter narrows series queries. Window bounds match occurrences, not
// anchors: recurring series are always returned regardless of the window,
// since their anchor may predate it while later occurrences fall inside.
type SeriesFilter struct {
	StudentID   string
	StartsAfter *time.Time
	EndsBefore  *time.Time
}

// SeriesRepository exposes CRUD operations for lesson series.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series LessonSeries) error
	UpdateSeries(ctx context.Context, series LessonSeries) error
	GetSeries(ctx context.Context, id string) (LessonSeries, error)
	ListSeries(ctx context.Context, filter SeriesFilter) ([]LessonSeries, error)
	DeleteSeries(ctx context.Context, id string) error
}

// OverrideRepository stores per-occurrence overrides with upsert semantics on
// the (series, date) key.
type OverrideRepository interface {
	UpsertOverride(ctx context.Context, override OccurrenceOverride) error
	DeleteOverride(ctx context.Context, seriesID, date string) error
	ListOverrides(ctx context.Context, seriesIDs []string) ([]OccurrenceOverride, error)
}

// NoteRepository stores per-occurrence notes with upsert semantics on the
// (series, date) key.
type NoteRepository interface {
	UpsertNote(ctx context.Context, note OccurrenceNote) error
	DeleteNote(ctx context.Context, seriesID, date string) error
	ListNotes(ctx context.Context, seriesIDs []string) ([]OccurrenceNote, error)
}

// PaymentLinkRepository stores payment-to-occurrence links.
type PaymentLinkRepository interface {
	CreatePaymentLink(ctx context.Context, link PaymentLink) error
	PaidExists(ctx context.Context, seriesID, date string) (bool, error)
	ListPaymentLinks(ctx context.Context, seriesIDs []string) ([]PaymentLink, error)
}
