// Package search executes full-text, semantic and hybrid queries over the
// note store.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/utils/logging"
)

const (
	// DefaultRRFK is the reciprocal-rank-fusion constant. 60 keeps a #1
	// rank from completely dominating, matching common practice.
	DefaultRRFK = 60.0

	// DefaultMinRelevance is the cosine-similarity floor for semantic and
	// related results.
	DefaultMinRelevance = 0.3

	defaultLimit      = 20
	discoverSeedCount = 5
)

// Service is the search engine over the note repository
type Service struct {
	repo         interfaces.Repository
	provider     interfaces.EmbeddingProvider
	rrfK         float64
	minRelevance float64
}

// Option configures a Service
type Option func(*Service)

// WithRRFK overrides the reciprocal-rank-fusion constant
func WithRRFK(k float64) Option {
	return func(s *Service) {
		if k > 0 {
			s.rrfK = k
		}
	}
}

// WithMinRelevance overrides the semantic relevance floor
func WithMinRelevance(min float64) Option {
	return func(s *Service) {
		s.minRelevance = min
	}
}

// New creates a search service
func New(repo interfaces.Repository, provider interfaces.EmbeddingProvider, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		provider:     provider,
		rrfK:         DefaultRRFK,
		minRelevance: DefaultMinRelevance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search executes a query in the given mode. An empty query returns an
// empty result set, not an error.
func (s *Service) Search(ctx context.Context, query string, mode types.SearchMode, limit int) (*model.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return &model.SearchResponse{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	switch mode {
	case types.SearchModeFullText:
		return s.fullText(ctx, query, limit)
	case types.SearchModeSemantic:
		return s.semantic(ctx, query, limit)
	case types.SearchModeHybrid, "":
		return s.hybrid(ctx, query, limit)
	default:
		return nil, goerr.New("unsupported search mode", goerr.V("mode", mode))
	}
}

func (s *Service) fullText(ctx context.Context, query string, limit int) (*model.SearchResponse, error) {
	results, err := s.repo.Note().SearchText(ctx, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "full-text search failed")
	}
	return &model.SearchResponse{Results: results}, nil
}

func (s *Service) semantic(ctx context.Context, query string, limit int) (*model.SearchResponse, error) {
	vector, err := s.provider.Generate(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	results, err := s.repo.Note().FindNearest(ctx, vector, limit, s.minRelevance)
	if err != nil {
		return nil, goerr.Wrap(err, "semantic search failed")
	}
	return &model.SearchResponse{Results: results}, nil
}

// hybrid fuses the full-text and semantic lists with reciprocal rank
// fusion. A semantic failure degrades to full-text-only results and is
// surfaced through the Degraded/Warning fields, never as an error.
func (s *Service) hybrid(ctx context.Context, query string, limit int) (*model.SearchResponse, error) {
	var textResults, semResults []*model.SearchResult
	var semErr error

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		results, err := s.repo.Note().SearchText(egCtx, query, limit)
		if err != nil {
			return goerr.Wrap(err, "full-text search failed")
		}
		textResults = results
		return nil
	})
	eg.Go(func() error {
		// Semantic failure degrades the response, it never fails the group.
		vector, err := s.provider.Generate(egCtx, query)
		if err != nil {
			semErr = err
			return nil
		}
		results, err := s.repo.Note().FindNearest(egCtx, vector, limit, s.minRelevance)
		if err != nil {
			semErr = err
			return nil
		}
		semResults = results
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if semErr != nil {
		logging.From(ctx).Warn("semantic scoring failed, degrading to full-text",
			"error", semErr.Error())
		resp := &model.SearchResponse{
			Results:  textResults,
			Degraded: true,
			Warning:  "semantic scoring unavailable, results are full-text only",
		}
		return resp, nil
	}

	fused := s.fuse(textResults, semResults)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return &model.SearchResponse{Results: fused}, nil
}

// fuse combines two ranked lists: score = Σ 1/(k + rank) over the lists a
// note appears in, ties broken by most recent update.
func (s *Service) fuse(textResults, semResults []*model.SearchResult) []*model.SearchResult {
	type fusion struct {
		result *model.SearchResult
		score  float64
	}
	byID := make(map[model.NoteID]*fusion)

	for i, r := range textResults {
		rank := i + 1
		byID[r.Note.ID] = &fusion{
			result: &model.SearchResult{
				Note:     r.Note,
				Snippet:  r.Snippet,
				TextRank: rank,
			},
			score: 1 / (s.rrfK + float64(rank)),
		}
	}

	for i, r := range semResults {
		rank := i + 1
		if f, ok := byID[r.Note.ID]; ok {
			f.score += 1 / (s.rrfK + float64(rank))
			f.result.SemanticRank = rank
			continue
		}
		byID[r.Note.ID] = &fusion{
			result: &model.SearchResult{
				Note:         r.Note,
				SemanticRank: rank,
			},
			score: 1 / (s.rrfK + float64(rank)),
		}
	}

	fused := make([]*model.SearchResult, 0, len(byID))
	for _, f := range byID {
		f.result.Score = f.score
		fused = append(fused, f.result)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Note.UpdatedAt.After(fused[j].Note.UpdatedAt)
	})

	return fused
}

// Related surfaces the nearest neighbors of a seed note. The seed itself is
// excluded. A seed without a completed embedding yields an empty, degraded
// response rather than an error.
func (s *Service) Related(ctx context.Context, seedID model.NoteID, limit int) (*model.SearchResponse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	seed, err := s.repo.Note().Get(ctx, seedID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load seed note", goerr.V("id", seedID))
	}
	if !seed.HasValidEmbedding() {
		return &model.SearchResponse{
			Degraded: true,
			Warning:  "seed note has no completed embedding",
		}, nil
	}

	// Fetch one extra so dropping the seed still fills the limit.
	results, err := s.repo.Note().FindNearest(ctx, seed.Embedding, limit+1, s.minRelevance)
	if err != nil {
		return nil, goerr.Wrap(err, "related search failed")
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Note.ID == seedID {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	return &model.SearchResponse{Results: filtered}, nil
}

// Discover surfaces notes near the centroid of the most recently updated
// embedded notes, excluding the seeds themselves.
func (s *Service) Discover(ctx context.Context, limit int) (*model.SearchResponse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	notes, err := s.repo.Note().List(ctx, "")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load notes")
	}

	var embedded []*model.Note
	for _, n := range notes {
		if n.HasValidEmbedding() {
			embedded = append(embedded, n)
		}
	}
	if len(embedded) == 0 {
		return &model.SearchResponse{}, nil
	}

	sort.Slice(embedded, func(i, j int) bool {
		return embedded[i].UpdatedAt.After(embedded[j].UpdatedAt)
	})
	seeds := embedded
	if len(seeds) > discoverSeedCount {
		seeds = seeds[:discoverSeedCount]
	}

	centroid := make([]float32, len(seeds[0].Embedding))
	for _, seed := range seeds {
		for i, v := range seed.Embedding {
			centroid[i] += v
		}
	}
	for i := range centroid {
		centroid[i] /= float32(len(seeds))
	}

	results, err := s.repo.Note().FindNearest(ctx, centroid, limit+len(seeds), s.minRelevance)
	if err != nil {
		return nil, goerr.Wrap(err, "discover search failed")
	}

	seedIDs := make(map[model.NoteID]bool, len(seeds))
	for _, seed := range seeds {
		seedIDs[seed.ID] = true
	}

	filtered := results[:0]
	for _, r := range results {
		if seedIDs[r.Note.ID] {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	return &model.SearchResponse{Results: filtered}, nil
}
