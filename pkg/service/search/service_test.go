package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/service/search"
)

// mockNoteRepo pins the ranked lists so fusion arithmetic is deterministic
type mockNoteRepo struct {
	interfaces.NoteRepository

	notes       map[model.NoteID]*model.Note
	textResults []*model.SearchResult
	vecResults  []*model.SearchResult
	textErr     error
	vecErr      error
}

func (r *mockNoteRepo) Get(ctx context.Context, id model.NoteID) (*model.Note, error) {
	if note, ok := r.notes[id]; ok {
		return note, nil
	}
	return nil, goerr.Wrap(model.ErrNoteNotFound, "note not found")
}

func (r *mockNoteRepo) SearchText(ctx context.Context, query string, limit int) ([]*model.SearchResult, error) {
	return r.textResults, r.textErr
}

func (r *mockNoteRepo) FindNearest(ctx context.Context, vector []float32, limit int, minScore float64) ([]*model.SearchResult, error) {
	return r.vecResults, r.vecErr
}

func (r *mockNoteRepo) List(ctx context.Context, status types.NoteStatus) ([]*model.Note, error) {
	var notes []*model.Note
	for _, n := range r.notes {
		notes = append(notes, n)
	}
	return notes, nil
}

type mockRepo struct {
	note *mockNoteRepo
}

func (r *mockRepo) Note() interfaces.NoteRepository { return r.note }
func (r *mockRepo) Close() error                    { return nil }

type stubProvider struct {
	vector []float32
	err    error
}

func (p *stubProvider) Model() string { return "stub-model" }

func (p *stubProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.vector, nil
}

func note(id string) *model.Note {
	return &model.Note{
		ID:        model.NoteID(id),
		Title:     "Note " + id,
		Content:   "content",
		UpdatedAt: time.Now().UTC(),
	}
}

func results(notes ...*model.Note) []*model.SearchResult {
	out := make([]*model.SearchResult, len(notes))
	for i, n := range notes {
		out[i] = &model.SearchResult{Note: n, Score: 1 / float64(i+1)}
	}
	return out
}

func TestSearchEmptyQueryReturnsEmpty(t *testing.T) {
	repo := &mockRepo{note: &mockNoteRepo{}}
	svc := search.New(repo, &stubProvider{})

	resp, err := svc.Search(context.Background(), "   ", types.SearchModeHybrid, 10)
	gt.NoError(t, err).Required()
	gt.A(t, resp.Results).Length(0)
	gt.Value(t, resp.Degraded).Equal(false)
}

func TestHybridRRFRanksExtremeSemanticHitFirst(t *testing.T) {
	a, b, c := note("a"), note("b"), note("c")

	repo := &mockRepo{note: &mockNoteRepo{
		// A is #1 full-text, #3 semantic; B is #2 full-text, #1 semantic.
		// With k=60: score(B) = 1/62 + 1/61 > score(A) = 1/61 + 1/63.
		textResults: results(a, b, c),
		vecResults:  results(b, c, a),
	}}
	svc := search.New(repo, &stubProvider{vector: []float32{1}})

	resp, err := svc.Search(context.Background(), "fixture", types.SearchModeHybrid, 10)
	gt.NoError(t, err).Required()
	gt.A(t, resp.Results).Length(3)
	gt.Value(t, resp.Degraded).Equal(false)

	gt.Value(t, resp.Results[0].Note.ID).Equal(b.ID)
	gt.Value(t, resp.Results[1].Note.ID).Equal(a.ID)

	gt.Number(t, resp.Results[0].TextRank).Equal(2)
	gt.Number(t, resp.Results[0].SemanticRank).Equal(1)
	gt.Number(t, resp.Results[1].TextRank).Equal(1)
	gt.Number(t, resp.Results[1].SemanticRank).Equal(3)
}

func TestHybridDegradesToFullTextOnProviderFailure(t *testing.T) {
	a, b := note("a"), note("b")

	repo := &mockRepo{note: &mockNoteRepo{
		textResults: results(a, b),
	}}
	svc := search.New(repo, &stubProvider{err: goerr.Wrap(interfaces.ErrProviderUnavailable, "down")})

	resp, err := svc.Search(context.Background(), "query", types.SearchModeHybrid, 10)
	gt.NoError(t, err).Required()

	gt.Value(t, resp.Degraded).Equal(true)
	gt.Value(t, resp.Warning != "").Equal(true)
	gt.A(t, resp.Results).Length(2)
	gt.Value(t, resp.Results[0].Note.ID).Equal(a.ID)
}

func TestSemanticModeFailsOnProviderFailure(t *testing.T) {
	repo := &mockRepo{note: &mockNoteRepo{}}
	svc := search.New(repo, &stubProvider{err: goerr.Wrap(interfaces.ErrProviderUnavailable, "down")})

	_, err := svc.Search(context.Background(), "query", types.SearchModeSemantic, 10)
	gt.Error(t, err).Is(interfaces.ErrProviderUnavailable)
}

func TestRelatedExcludesSeed(t *testing.T) {
	seed := note("seed")
	seed.EmbedStatus = types.EmbedStatusCompleted
	seed.EmbeddingModel = "stub-model"
	seed.Embedding = []float32{1, 0}

	other := note("other")

	repo := &mockRepo{note: &mockNoteRepo{
		notes:      map[model.NoteID]*model.Note{seed.ID: seed},
		vecResults: results(seed, other),
	}}
	svc := search.New(repo, &stubProvider{})

	resp, err := svc.Related(context.Background(), seed.ID, 10)
	gt.NoError(t, err).Required()

	gt.A(t, resp.Results).Length(1)
	gt.Value(t, resp.Results[0].Note.ID).Equal(other.ID)
}

func TestRelatedWithoutEmbeddingDegrades(t *testing.T) {
	seed := note("seed")

	repo := &mockRepo{note: &mockNoteRepo{
		notes: map[model.NoteID]*model.Note{seed.ID: seed},
	}}
	svc := search.New(repo, &stubProvider{})

	resp, err := svc.Related(context.Background(), seed.ID, 10)
	gt.NoError(t, err).Required()

	gt.Value(t, resp.Degraded).Equal(true)
	gt.A(t, resp.Results).Length(0)
}
