package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/utils/textscore"
)

type noteRepository struct {
	mu    sync.RWMutex
	notes map[model.NoteID]*model.Note
}

func newNoteRepository() *noteRepository {
	return &noteRepository{
		notes: make(map[model.NoteID]*model.Note),
	}
}

func (r *noteRepository) Create(ctx context.Context, note *model.Note) (*model.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	created := note.Clone()
	if created.ID == "" {
		created.ID = model.NewNoteID()
	}
	created.Status = created.Status.Normalize()
	created.NoteType = created.NoteType.Normalize()
	created.EmbedStatus = created.EmbedStatus.Normalize()
	created.CreatedAt = now
	created.UpdatedAt = now

	r.notes[created.ID] = created
	return created.Clone(), nil
}

func (r *noteRepository) Get(ctx context.Context, id model.NoteID) (*model.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	note, exists := r.notes[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", id))
	}

	return note.Clone(), nil
}

func (r *noteRepository) GetByTitle(ctx context.Context, title string) (*model.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := normalizeTitle(title)
	for _, note := range r.notes {
		if normalizeTitle(note.Title) == want {
			return note.Clone(), nil
		}
	}

	return nil, goerr.Wrap(model.ErrNoteNotFound, "note not found by title", goerr.V("title", title))
}

func (r *noteRepository) Update(ctx context.Context, note *model.Note) (*model.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.notes[note.ID]
	if !exists {
		return nil, goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", note.ID))
	}

	updated := note.Clone()
	// Embedding fields are owned by UpdateEmbedding; keep the stored state.
	updated.EmbedStatus = existing.EmbedStatus
	updated.EmbeddingModel = existing.EmbeddingModel
	updated.EmbedError = existing.EmbedError
	updated.EmbedRetryCount = existing.EmbedRetryCount
	updated.EmbedUpdatedAt = existing.EmbedUpdatedAt
	updated.Embedding = existing.Embedding
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	r.notes[note.ID] = updated
	return updated.Clone(), nil
}

func (r *noteRepository) Delete(ctx context.Context, id model.NoteID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notes[id]; !exists {
		return goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", id))
	}

	delete(r.notes, id)
	return nil
}

func (r *noteRepository) List(ctx context.Context, status types.NoteStatus) ([]*model.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Note, 0, len(r.notes))
	for _, note := range r.notes {
		if status != "" && note.Status != status {
			continue
		}
		result = append(result, note.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *noteRepository) ListIDsByEmbedStatus(ctx context.Context, statuses ...types.EmbedStatus) ([]model.NoteID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[types.EmbedStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var ids []model.NoteID
	for _, note := range r.notes {
		if wanted[note.EmbedStatus] {
			ids = append(ids, note.ID)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UpdateEmbedding writes all embedding fields under a single lock so readers
// never observe a vector with a mismatched status.
func (r *noteRepository) UpdateEmbedding(ctx context.Context, id model.NoteID, update model.EmbeddingUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	note, exists := r.notes[id]
	if !exists {
		return goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", id))
	}

	note.EmbedStatus = update.Status
	note.EmbeddingModel = update.Model
	note.EmbedError = update.Error
	note.EmbedRetryCount = update.RetryCount
	if update.Vector != nil {
		note.Embedding = make([]float32, len(update.Vector))
		copy(note.Embedding, update.Vector)
	} else {
		note.Embedding = nil
	}
	at := update.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	note.EmbedUpdatedAt = &at

	return nil
}

func (r *noteRepository) SearchText(ctx context.Context, query string, limit int) ([]*model.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.SearchResult
	for _, note := range r.notes {
		score := textscore.Score(query, note.Title, note.Content)
		if score <= 0 {
			continue
		}
		results = append(results, &model.SearchResult{
			Note:    note.Clone(),
			Score:   score,
			Snippet: textscore.Snippet(query, note.Content),
		})
	}

	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (r *noteRepository) FindNearest(ctx context.Context, vector []float32, limit int, minScore float64) ([]*model.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.SearchResult
	for _, note := range r.notes {
		if !note.HasValidEmbedding() {
			continue
		}
		score := cosineSimilarity(vector, note.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, &model.SearchResult{
			Note:  note.Clone(),
			Score: score,
		})
	}

	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (r *noteRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.notes), nil
}

func sortResults(results []*model.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Note.UpdatedAt.After(results[j].Note.UpdatedAt)
	})
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
