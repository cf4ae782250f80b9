// Package usecase wires the note store, the enrichment pipeline, search and
// health into the operations the controllers expose.
package usecase

import (
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/service/enrich"
	"github.com/zettel-lab/kasten/pkg/service/health"
	"github.com/zettel-lab/kasten/pkg/service/search"
)

// UseCases provides the application use cases
type UseCases struct {
	repo         interfaces.Repository
	queue        *enrich.Queue
	searchSvc    *search.Service
	healthEngine *health.Engine
}

// Option configures UseCases
type Option func(*UseCases)

// WithQueue sets the enrichment queue notes are enqueued into on create and
// on content edits
func WithQueue(q *enrich.Queue) Option {
	return func(u *UseCases) {
		u.queue = q
	}
}

// WithSearchService sets the search engine
func WithSearchService(s *search.Service) Option {
	return func(u *UseCases) {
		u.searchSvc = s
	}
}

// WithHealthEngine sets the knowledge-graph health engine
func WithHealthEngine(e *health.Engine) Option {
	return func(u *UseCases) {
		u.healthEngine = e
	}
}

// New creates a new UseCases instance
func New(repo interfaces.Repository, opts ...Option) *UseCases {
	u := &UseCases{
		repo: repo,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Repository exposes the underlying store for controllers that only read
func (u *UseCases) Repository() interfaces.Repository {
	return u.repo
}

// EnqueueEnrichment schedules a note for embedding. Fire-and-forget; a nil
// queue (e.g. in a read-only tool) makes this a no-op.
func (u *UseCases) EnqueueEnrichment(noteID model.NoteID) {
	if u.queue != nil {
		u.queue.Enqueue(noteID)
	}
}
