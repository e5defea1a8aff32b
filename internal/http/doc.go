// Package http provides HTTP handlers and middleware for the lessons API.
//
// The router exposes the following endpoints:
//   - GET /occurrences?from&to[&student_id]: expands every series overlapping
//     the inclusive window and returns the resolved occurrence list.
//   - POST /lessons: creates a standalone lesson or recurring series from the
//     `lessonRequest` payload defined in lesson_handler.go.
//   - PATCH /lessons/{id}/occurrences/{date}: edits one occurrence; the body
//     carries the changed fields plus a `scope` of "single" or "future".
//   - DELETE /lessons/{id}/occurrences/{date}?scope=: deletes one occurrence
//     or the occurrence and everything after it.
//   - GET /lessons/{id}/occurrences/{date}/has-future: reports whether later
//     occurrences exist, so clients know whether to offer a scope choice.
//   - POST /lessons/{id}/occurrences/{date}/move: reschedules one occurrence
//     through the override table without splitting the series.
//   - PUT|DELETE /lessons/{id}/occurrences/{date}/note: sets or clears the
//     occurrence note.
//   - GET /students/{id}/unpaid: lists the student's unpaid occurrences.
//   - POST /payments: links a recorded payment to a set of occurrences.
//
// Occurrence dates in paths use the canonical YYYY-MM-DD form in the service's
// configured timezone. Request/response DTOs live alongside the handler so
// tests and documentation share the same ground truth.
package http
