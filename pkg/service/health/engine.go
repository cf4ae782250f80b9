// Package health builds a per-run knowledge graph over the permanent note
// corpus and reports its structural condition: orphans, islands, dangling
// links, near-duplicates and oversized notes.
package health

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/utils/async"
	"github.com/zettel-lab/kasten/pkg/utils/logging"
)

const (
	// DefaultSimilarityThreshold is the cosine similarity above which two
	// notes get a similarity edge.
	DefaultSimilarityThreshold = 0.80

	// DefaultDuplicateThreshold is the stricter cosine similarity above
	// which a pair is flagged as a merge candidate.
	DefaultDuplicateThreshold = 0.95

	// DefaultSplitThreshold is the content length in characters above which
	// a note is flagged as a split candidate.
	DefaultSplitThreshold = 8000
)

// ErrRunInProgress is returned when a health run is triggered while another
// run is still scanning the corpus.
var ErrRunInProgress = goerr.New("health run already in progress")

// Engine produces knowledge-graph health reports
type Engine struct {
	repo interfaces.Repository

	similarityThreshold float64
	duplicateThreshold  float64
	splitThreshold      int

	runMu   sync.Mutex
	running bool

	reportMu   sync.RWMutex
	lastReport *model.HealthReport

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures an Engine
type Option func(*Engine)

// WithSimilarityThreshold overrides the similarity-edge threshold
func WithSimilarityThreshold(v float64) Option {
	return func(e *Engine) { e.similarityThreshold = v }
}

// WithDuplicateThreshold overrides the duplicate-candidate threshold
func WithDuplicateThreshold(v float64) Option {
	return func(e *Engine) { e.duplicateThreshold = v }
}

// WithSplitThreshold overrides the oversized-note content length
func WithSplitThreshold(v int) Option {
	return func(e *Engine) {
		if v > 0 {
			e.splitThreshold = v
		}
	}
}

// New creates a health engine
func New(repo interfaces.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:                repo,
		similarityThreshold: DefaultSimilarityThreshold,
		duplicateThreshold:  DefaultDuplicateThreshold,
		splitThreshold:      DefaultSplitThreshold,
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the periodic scan loop. The first scan runs right away so
// a report is available shortly after boot. It does not block.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	logging.From(ctx).Info("health engine starting", "interval", interval)

	go func() {
		defer close(e.doneCh)

		e.dispatchRun(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				e.dispatchRun(ctx)
			}
		}
	}()
}

// Stop halts the periodic loop. A scan already dispatched may still finish.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
	logging.Default().Info("health engine stopped")
}

func (e *Engine) dispatchRun(ctx context.Context) {
	async.Dispatch(ctx, func(ctx context.Context) error {
		if _, err := e.Run(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				logging.From(ctx).Warn("skipping health run, previous run still active")
				return nil
			}
			return err
		}
		return nil
	})
}

// Report returns the most recent report, or nil if no run has completed yet
func (e *Engine) Report() *model.HealthReport {
	e.reportMu.RLock()
	defer e.reportMu.RUnlock()
	return e.lastReport
}

// Run scans the permanent note corpus and produces a fresh report. Runs are
// non-reentrant: a second trigger while one is in flight gets
// ErrRunInProgress instead of a concurrent scan. A store-access failure
// aborts the run without replacing the previous report.
func (e *Engine) Run(ctx context.Context) (*model.HealthReport, error) {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return nil, ErrRunInProgress
	}
	e.running = true
	e.runMu.Unlock()

	defer func() {
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
	}()

	startedAt := time.Now()

	notes, err := e.repo.Note().List(ctx, types.NoteStatusPermanent)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load permanent notes")
	}

	report := e.build(notes)
	report.GeneratedAt = startedAt
	report.Duration = time.Since(startedAt)

	e.reportMu.Lock()
	e.lastReport = report
	e.reportMu.Unlock()

	logging.From(ctx).Info("health run completed",
		"total_notes", report.TotalNotes,
		"orphans", report.OrphanCount,
		"islands", len(report.Islands),
		"dangling_links", len(report.DanglingLinks),
		"duplicate_candidates", len(report.DuplicateCandidates),
		"duration", report.Duration,
	)

	return report, nil
}

func (e *Engine) build(notes []*model.Note) *model.HealthReport {
	report := &model.HealthReport{
		TotalNotes: len(notes),
	}
	if len(notes) == 0 {
		return report
	}

	// Stable dense indices for the union-find arrays.
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	index := make(map[model.NoteID]int, len(notes))
	byTitle := make(map[string]int, len(notes))
	for i, n := range notes {
		index[n.ID] = i
		byTitle[normalizeTitle(n.Title)] = i
	}

	var edges []model.GraphEdge
	linked := make(map[[2]int]bool)

	for i, n := range notes {
		for _, target := range extractLinks(n.Content) {
			j, ok := byTitle[normalizeTitle(target)]
			if !ok {
				report.DanglingLinks = append(report.DanglingLinks, model.DanglingLink{
					NoteID:      n.ID,
					TargetTitle: target,
				})
				continue
			}
			if j == i {
				continue
			}
			edges = append(edges, model.GraphEdge{
				Source: n.ID,
				Target: notes[j].ID,
				Kind:   model.EdgeKindLink,
				Weight: 1,
			})
			if i < j {
				linked[[2]int{i, j}] = true
			} else {
				linked[[2]int{j, i}] = true
			}
		}

		if utf8.RuneCountInString(n.Content) > e.splitThreshold {
			report.SplitCandidates = append(report.SplitCandidates, n.ID)
		}
	}

	// Exhaustive pairwise comparison. Fine for a personal corpus; an
	// index-backed nearest-neighbor query would be needed at larger scale.
	for i := 0; i < len(notes); i++ {
		if !notes[i].HasValidEmbedding() {
			continue
		}
		for j := i + 1; j < len(notes); j++ {
			if !notes[j].HasValidEmbedding() {
				continue
			}
			sim := cosineSimilarity(notes[i].Embedding, notes[j].Embedding)
			if sim < e.similarityThreshold {
				continue
			}
			edges = append(edges, model.GraphEdge{
				Source: notes[i].ID,
				Target: notes[j].ID,
				Kind:   model.EdgeKindSimilarity,
				Weight: sim,
			})
			// A pair the author already linked is connected on purpose;
			// only similarity-only pairs are merge candidates.
			if sim >= e.duplicateThreshold && !linked[[2]int{i, j}] {
				report.DuplicateCandidates = append(report.DuplicateCandidates, model.DuplicateCandidate{
					A:          notes[i].ID,
					B:          notes[j].ID,
					Similarity: sim,
				})
			}
		}
	}

	uf := newUnionFind(len(notes))
	for _, edge := range edges {
		uf.union(index[edge.Source], index[edge.Target])
	}

	groups := uf.components()
	var components [][]int
	for _, members := range groups {
		components = append(components, members)
	}
	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})

	for rank, members := range components {
		if len(members) == 1 {
			report.Orphans = append(report.Orphans, notes[members[0]].ID)
			continue
		}
		if rank == 0 {
			report.MainGraphSize = len(members)
			continue
		}
		island := model.Island{Size: len(members)}
		for _, idx := range members {
			island.NoteIDs = append(island.NoteIDs, notes[idx].ID)
		}
		report.Islands = append(report.Islands, island)
	}
	report.OrphanCount = len(report.Orphans)

	return report
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
