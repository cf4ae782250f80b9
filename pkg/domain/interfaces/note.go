package interfaces

import (
	"context"

	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
)

// NoteRepository defines the interface for Note data persistence
type NoteRepository interface {
	// Create creates a new note
	Create(ctx context.Context, note *model.Note) (*model.Note, error)

	// Get retrieves a note by ID
	Get(ctx context.Context, id model.NoteID) (*model.Note, error)

	// GetByTitle retrieves a note by exact title match. Used to resolve
	// [[Title]] references.
	GetByTitle(ctx context.Context, title string) (*model.Note, error)

	// Update replaces the note's content fields (not the embedding fields)
	Update(ctx context.Context, note *model.Note) (*model.Note, error)

	// Delete deletes a note by ID
	Delete(ctx context.Context, id model.NoteID) error

	// List retrieves all notes, optionally filtered by note status
	List(ctx context.Context, status types.NoteStatus) ([]*model.Note, error)

	// ListIDsByEmbedStatus retrieves the IDs of all notes in any of the
	// given embedding states. Used by the startup reconciliation scan.
	ListIDsByEmbedStatus(ctx context.Context, statuses ...types.EmbedStatus) ([]model.NoteID, error)

	// UpdateEmbedding applies an embedding-state transition as a single
	// atomic write of all embedding fields.
	UpdateEmbedding(ctx context.Context, id model.NoteID, update model.EmbeddingUpdate) error

	// SearchText ranks notes lexically against the query, best first
	SearchText(ctx context.Context, query string, limit int) ([]*model.SearchResult, error)

	// FindNearest ranks notes by cosine similarity to the given vector,
	// best first. Only notes with a Completed embedding are considered;
	// minScore excludes weak matches.
	FindNearest(ctx context.Context, vector []float32, limit int, minScore float64) ([]*model.SearchResult, error)

	// Count returns the total number of notes
	Count(ctx context.Context) (int, error)
}
