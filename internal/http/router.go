package http

import (
	"net/http"
	"strings"

	"github.com/example/lesson-scheduler/internal/lessons"
)

type RouterConfig struct {
	Lessons    *LessonHandler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Lessons != nil {
		mux.HandleFunc("/occurrences", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Lessons.ListOccurrences(w, r)
		})

		mux.HandleFunc("/lessons", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Lessons.Create(w, r)
		})

		mux.HandleFunc("/lessons/", func(w http.ResponseWriter, r *http.Request) {
			routeOccurrence(cfg.Lessons, w, r)
		})

		mux.HandleFunc("/students/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/students/")
			segments := strings.Split(rest, "/")
			if len(segments) != 2 || segments[0] == "" || segments[1] != "unpaid" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Lessons.Unpaid(w, r, segments[0])
		})

		mux.HandleFunc("/payments", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Lessons.RecordPayment(w, r)
		})
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

// routeOccurrence dispatches /lessons/{id}/occurrences/{date}[/{sub}] paths.
func routeOccurrence(handler *LessonHandler, w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/lessons/")
	segments := strings.Split(rest, "/")
	if len(segments) < 3 || len(segments) > 4 || segments[0] == "" || segments[1] != "occurrences" || segments[2] == "" {
		http.NotFound(w, r)
		return
	}

	date, err := lessons.ParseLocalDate(segments[2])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	ctx := ContextWithSeriesID(r.Context(), segments[0])
	ctx = ContextWithDate(ctx, date)
	r = r.WithContext(ctx)

	if len(segments) == 3 {
		switch r.Method {
		case http.MethodPatch:
			handler.Edit(w, r)
		case http.MethodDelete:
			handler.Delete(w, r)
		default:
			methodNotAllowed(w, http.MethodPatch, http.MethodDelete)
		}
		return
	}

	switch segments[3] {
	case "has-future":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		handler.HasFuture(w, r)
	case "note":
		switch r.Method {
		case http.MethodPut:
			handler.SetNote(w, r)
		case http.MethodDelete:
			handler.ClearNote(w, r)
		default:
			methodNotAllowed(w, http.MethodPut, http.MethodDelete)
		}
	case "move":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		handler.Move(w, r)
	default:
		http.NotFound(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
