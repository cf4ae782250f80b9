package health_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/repository/memory"
	"github.com/zettel-lab/kasten/pkg/service/health"
)

func createPermanent(t *testing.T, repo interfaces.Repository, title, content string, vector []float32) *model.Note {
	t.Helper()
	ctx := context.Background()

	created, err := repo.Note().Create(ctx, &model.Note{
		Title:   title,
		Content: content,
		Status:  types.NoteStatusPermanent,
	})
	gt.NoError(t, err).Required()

	if vector != nil {
		gt.NoError(t, repo.Note().UpdateEmbedding(ctx, created.ID, model.EmbeddingUpdate{
			Status:    types.EmbedStatusCompleted,
			Model:     "test-model",
			Vector:    vector,
			UpdatedAt: time.Now().UTC(),
		})).Required()
	}
	return created
}

func TestEngineLinkAndSimilarityComponents(t *testing.T) {
	repo := memory.New()

	// A-B connected by an explicit link, C-D by vector similarity, E alone.
	createPermanent(t, repo, "Note A", "Links to [[Note B]].", nil)
	createPermanent(t, repo, "Note B", "Standalone text.", nil)
	createPermanent(t, repo, "Note C", "Vector twin one.", []float32{0, 0, 1, 0})
	createPermanent(t, repo, "Note D", "Vector twin two.", []float32{0, 0, 0.85, 0.5268})
	e := createPermanent(t, repo, "Note E", "No edges at all.", nil)

	engine := health.New(repo,
		health.WithSimilarityThreshold(0.8),
		health.WithDuplicateThreshold(0.99),
	)

	report, err := engine.Run(context.Background())
	gt.NoError(t, err).Required()

	gt.Number(t, report.TotalNotes).Equal(5)
	gt.Number(t, report.MainGraphSize).Equal(2)
	gt.A(t, report.Islands).Length(1)
	gt.Number(t, report.Islands[0].Size).Equal(2)
	gt.Number(t, report.OrphanCount).Equal(1)
	gt.Value(t, report.Orphans[0]).Equal(e.ID)
	gt.A(t, report.DanglingLinks).Length(0)
	gt.A(t, report.DuplicateCandidates).Length(0)
	gt.Value(t, report.Duration > 0).Equal(true)
}

func TestEngineDanglingLinkDoesNotCreateEdge(t *testing.T) {
	repo := memory.New()

	a := createPermanent(t, repo, "Note A", "Points at [[Missing Note]].", nil)

	report, err := health.New(repo).Run(context.Background())
	gt.NoError(t, err).Required()

	gt.A(t, report.DanglingLinks).Length(1)
	gt.Value(t, report.DanglingLinks[0].NoteID).Equal(a.ID)
	gt.Value(t, report.DanglingLinks[0].TargetTitle).Equal("Missing Note")
	gt.Number(t, report.OrphanCount).Equal(1)
}

func TestEngineFleetingNotesExcluded(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	createPermanent(t, repo, "Permanent", "x", nil)
	_, err := repo.Note().Create(ctx, &model.Note{
		Title:   "Fleeting capture",
		Content: "x",
		Status:  types.NoteStatusFleeting,
	})
	gt.NoError(t, err).Required()

	report, err := health.New(repo).Run(ctx)
	gt.NoError(t, err).Required()
	gt.Number(t, report.TotalNotes).Equal(1)
}

func TestEngineDuplicatePairReportedOnce(t *testing.T) {
	repo := memory.New()

	a := createPermanent(t, repo, "Dup A", "Nearly identical.", []float32{1, 0, 0})
	b := createPermanent(t, repo, "Dup B", "Nearly identical copy.", []float32{0.9998, 0.02, 0})
	createPermanent(t, repo, "Distinct", "Far away.", []float32{0, 1, 0})

	report, err := health.New(repo,
		health.WithSimilarityThreshold(0.8),
		health.WithDuplicateThreshold(0.95),
	).Run(context.Background())
	gt.NoError(t, err).Required()

	gt.A(t, report.DuplicateCandidates).Length(1)
	dup := report.DuplicateCandidates[0]
	pair := map[model.NoteID]bool{dup.A: true, dup.B: true}
	gt.Value(t, pair[a.ID] && pair[b.ID]).Equal(true)
	gt.Value(t, dup.A < dup.B).Equal(true)
	gt.Value(t, dup.Similarity >= 0.95).Equal(true)
}

func TestEngineLinkedPairIsNotDuplicateCandidate(t *testing.T) {
	repo := memory.New()

	// A links to its vector twin B, so the author already connected them
	// deliberately. The similarity-only pair C-D still gets reported.
	createPermanent(t, repo, "Dup A", "See also [[Dup B]].", []float32{1, 0, 0})
	createPermanent(t, repo, "Dup B", "Nearly identical copy.", []float32{0.9998, 0.02, 0})
	c := createPermanent(t, repo, "Dup C", "Twin without a link.", []float32{0, 1, 0})
	d := createPermanent(t, repo, "Dup D", "Other twin without a link.", []float32{0.02, 0.9998, 0})

	report, err := health.New(repo,
		health.WithSimilarityThreshold(0.8),
		health.WithDuplicateThreshold(0.95),
	).Run(context.Background())
	gt.NoError(t, err).Required()

	gt.A(t, report.DuplicateCandidates).Length(1)
	dup := report.DuplicateCandidates[0]
	pair := map[model.NoteID]bool{dup.A: true, dup.B: true}
	gt.Value(t, pair[c.ID] && pair[d.ID]).Equal(true)
}

func TestEngineSplitCandidates(t *testing.T) {
	repo := memory.New()

	big := createPermanent(t, repo, "Sprawling", strings.Repeat("word ", 50), nil)
	createPermanent(t, repo, "Compact", "short", nil)

	report, err := health.New(repo, health.WithSplitThreshold(100)).Run(context.Background())
	gt.NoError(t, err).Required()

	gt.A(t, report.SplitCandidates).Length(1)
	gt.Value(t, report.SplitCandidates[0]).Equal(big.ID)
}

func TestEngineReportAvailableAfterRun(t *testing.T) {
	repo := memory.New()
	engine := health.New(repo)

	gt.Value(t, engine.Report() == nil).Equal(true)

	report, err := engine.Run(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, engine.Report()).Equal(report)
}
