// Package http exposes the note store, search and health report over a
// small JSON API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/service/enrich"
	"github.com/zettel-lab/kasten/pkg/service/health"
	"github.com/zettel-lab/kasten/pkg/usecase"
	"github.com/zettel-lab/kasten/pkg/utils/errutil"
	"github.com/zettel-lab/kasten/pkg/utils/logging"
)

type Server struct {
	router       *chi.Mux
	uc           *usecase.UseCases
	workerStats  func() enrich.Stats
	pollerStatus func() (source string, lastPoll time.Time)
}

type Options func(*Server)

// WithWorkerStats exposes the embedding worker counters on /api/status
func WithWorkerStats(fn func() enrich.Stats) Options {
	return func(s *Server) {
		s.workerStats = fn
	}
}

// WithPollerStatus exposes the capture poller state on /api/status
func WithPollerStatus(fn func() (string, time.Time)) Options {
	return func(s *Server) {
		s.pollerStatus = fn
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/notes", func(r chi.Router) {
			r.Post("/", s.createNote)
			r.Get("/", s.listNotes)
			r.Get("/{noteID}", s.getNote)
			r.Patch("/{noteID}", s.updateNote)
			r.Delete("/{noteID}", s.deleteNote)
			r.Get("/{noteID}/related", s.relatedNotes)
		})

		r.Get("/search", s.search)
		r.Get("/discover", s.discover)

		r.Route("/health", func(r chi.Router) {
			r.Get("/report", s.healthReport)
			r.Post("/run", s.runHealthCheck)
		})

		r.Get("/status", s.status)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

// respondError maps domain errors to HTTP status codes
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNoteNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrTitleConflict), errors.Is(err, health.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, model.ErrMissingContent):
		status = http.StatusBadRequest
	}
	errutil.HandleHTTP(r.Context(), w, err, status)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	type pollerStatus struct {
		Source      string `json:"source"`
		LastPollUTC string `json:"last_poll_utc,omitempty"`
	}
	type response struct {
		Worker *enrich.Stats `json:"worker,omitempty"`
		Poller *pollerStatus `json:"poller,omitempty"`
	}

	var resp response
	if s.workerStats != nil {
		stats := s.workerStats()
		resp.Worker = &stats
	}
	if s.pollerStatus != nil {
		source, lastPoll := s.pollerStatus()
		ps := &pollerStatus{Source: source}
		if !lastPoll.IsZero() {
			ps.LastPollUTC = lastPoll.UTC().Format(time.RFC3339)
		}
		resp.Poller = ps
	}

	respondJSON(w, r, http.StatusOK, resp)
}
