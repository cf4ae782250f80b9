package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/repository/firestore"
	"github.com/zettel-lab/kasten/pkg/repository/memory"
)

func runNoteRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Zettelkasten method",
			Content: "Notes should be atomic and linked.",
			Status:  types.NoteStatusPermanent,
		})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		if created.ID == "" {
			t.Error("expected non-empty ID")
		}
		if created.CreatedAt.IsZero() {
			t.Error("expected non-zero CreatedAt")
		}
		if created.UpdatedAt.IsZero() {
			t.Error("expected non-zero UpdatedAt")
		}
		if created.EmbedStatus != types.EmbedStatusPending {
			t.Errorf("expected embed status %s, got %s", types.EmbedStatusPending, created.EmbedStatus)
		}
		if created.NoteType != types.NoteTypeRegular {
			t.Errorf("expected note type %s, got %s", types.NoteTypeRegular, created.NoteType)
		}
	})

	t.Run("Get retrieves existing note", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Atomic notes",
			Content: "One idea per note.",
			Tags:    []string{"method"},
		})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		retrieved, err := repo.Note().Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("failed to get note: %v", err)
		}

		if retrieved.Title != created.Title {
			t.Errorf("expected title=%s, got %s", created.Title, retrieved.Title)
		}
		if retrieved.Content != created.Content {
			t.Errorf("expected content=%s, got %s", created.Content, retrieved.Content)
		}
		if len(retrieved.Tags) != 1 || retrieved.Tags[0] != "method" {
			t.Errorf("expected tags=[method], got %v", retrieved.Tags)
		}
	})

	t.Run("Get returns ErrNoteNotFound for missing note", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Note().Get(context.Background(), model.NewNoteID())
		if !errors.Is(err, model.ErrNoteNotFound) {
			t.Errorf("expected ErrNoteNotFound, got %v", err)
		}
	})

	t.Run("GetByTitle is case-insensitive", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Spaced Repetition",
			Content: "Review at increasing intervals.",
		})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		found, err := repo.Note().GetByTitle(ctx, "spaced repetition")
		if err != nil {
			t.Fatalf("failed to get note by title: %v", err)
		}
		if found.ID != created.ID {
			t.Errorf("expected ID=%s, got %s", created.ID, found.ID)
		}
	})

	t.Run("Update preserves embedding fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Graph thinking",
			Content: "Original content.",
		})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		if err := repo.Note().UpdateEmbedding(ctx, created.ID, model.EmbeddingUpdate{
			Status:    types.EmbedStatusCompleted,
			Model:     "test-model",
			Vector:    []float32{0.1, 0.2, 0.3},
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("failed to update embedding: %v", err)
		}

		created.Content = "Edited content."
		// The embedding fields the caller carries are ignored on Update.
		created.EmbedStatus = types.EmbedStatusPending
		created.Embedding = nil

		updated, err := repo.Note().Update(ctx, created)
		if err != nil {
			t.Fatalf("failed to update note: %v", err)
		}

		if updated.Content != "Edited content." {
			t.Errorf("expected updated content, got %s", updated.Content)
		}
		if updated.EmbedStatus != types.EmbedStatusCompleted {
			t.Errorf("expected embed status preserved, got %s", updated.EmbedStatus)
		}
		if updated.EmbeddingModel != "test-model" {
			t.Errorf("expected embedding model preserved, got %s", updated.EmbeddingModel)
		}
		if len(updated.Embedding) != 3 {
			t.Errorf("expected vector preserved, got %v", updated.Embedding)
		}
	})

	t.Run("UpdateEmbedding writes all fields atomically", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Embedding state",
			Content: "Content.",
		})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		now := time.Now().UTC()
		if err := repo.Note().UpdateEmbedding(ctx, created.ID, model.EmbeddingUpdate{
			Status:     types.EmbedStatusCompleted,
			Model:      "test-model",
			RetryCount: 0,
			Vector:     []float32{1, 0},
			UpdatedAt:  now,
		}); err != nil {
			t.Fatalf("failed to update embedding: %v", err)
		}

		got, err := repo.Note().Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("failed to get note: %v", err)
		}

		if !got.HasValidEmbedding() {
			t.Errorf("expected valid embedding, got status=%s model=%s vector=%v",
				got.EmbedStatus, got.EmbeddingModel, got.Embedding)
		}
		if got.EmbedUpdatedAt == nil {
			t.Error("expected EmbedUpdatedAt to be set")
		}
	})

	t.Run("UpdateEmbedding on missing note returns ErrNoteNotFound", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.Note().UpdateEmbedding(context.Background(), model.NewNoteID(), model.EmbeddingUpdate{
			Status: types.EmbedStatusPending,
		})
		if !errors.Is(err, model.ErrNoteNotFound) {
			t.Errorf("expected ErrNoteNotFound, got %v", err)
		}
	})

	t.Run("Delete removes the note", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Ephemeral",
			Content: "To be deleted.",
		})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		if err := repo.Note().Delete(ctx, created.ID); err != nil {
			t.Fatalf("failed to delete note: %v", err)
		}

		_, err = repo.Note().Get(ctx, created.ID)
		if !errors.Is(err, model.ErrNoteNotFound) {
			t.Errorf("expected ErrNoteNotFound after delete, got %v", err)
		}
	})

	t.Run("List filters by status", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, n := range []*model.Note{
			{Title: "Permanent one", Content: "x", Status: types.NoteStatusPermanent},
			{Title: "Permanent two", Content: "x", Status: types.NoteStatusPermanent},
			{Title: "Fleeting one", Content: "x", Status: types.NoteStatusFleeting},
		} {
			if _, err := repo.Note().Create(ctx, n); err != nil {
				t.Fatalf("failed to create note: %v", err)
			}
		}

		permanent, err := repo.Note().List(ctx, types.NoteStatusPermanent)
		if err != nil {
			t.Fatalf("failed to list notes: %v", err)
		}
		if len(permanent) != 2 {
			t.Errorf("expected 2 permanent notes, got %d", len(permanent))
		}

		all, err := repo.Note().List(ctx, "")
		if err != nil {
			t.Fatalf("failed to list all notes: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 notes, got %d", len(all))
		}
	})

	t.Run("ListIDsByEmbedStatus selects matching notes", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		pending, err := repo.Note().Create(ctx, &model.Note{Title: "Pending note", Content: "x"})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}
		done, err := repo.Note().Create(ctx, &model.Note{Title: "Done note", Content: "x"})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}
		if err := repo.Note().UpdateEmbedding(ctx, done.ID, model.EmbeddingUpdate{
			Status:    types.EmbedStatusCompleted,
			Model:     "test-model",
			Vector:    []float32{1},
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("failed to update embedding: %v", err)
		}

		ids, err := repo.Note().ListIDsByEmbedStatus(ctx, types.EmbedStatusPending, types.EmbedStatusStale)
		if err != nil {
			t.Fatalf("failed to list IDs: %v", err)
		}
		if len(ids) != 1 || ids[0] != pending.ID {
			t.Errorf("expected [%s], got %v", pending.ID, ids)
		}
	})

	t.Run("SearchText ranks title matches above content matches", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		titleHit, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Incremental reading",
			Content: "A way to process many sources.",
		})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}
		if _, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Source processing",
			Content: "Incremental steps help with reading load.",
		}); err != nil {
			t.Fatalf("failed to create note: %v", err)
		}
		if _, err := repo.Note().Create(ctx, &model.Note{
			Title:   "Unrelated",
			Content: "Nothing relevant here.",
		}); err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		results, err := repo.Note().SearchText(ctx, "incremental reading", 10)
		if err != nil {
			t.Fatalf("failed to search: %v", err)
		}

		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Note.ID != titleHit.ID {
			t.Errorf("expected title match first, got %s", results[0].Note.Title)
		}
		if results[0].Snippet == "" {
			t.Error("expected non-empty snippet")
		}
	})

	t.Run("FindNearest excludes notes without completed embedding", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		near, err := repo.Note().Create(ctx, &model.Note{Title: "Near", Content: "x"})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}
		if err := repo.Note().UpdateEmbedding(ctx, near.ID, model.EmbeddingUpdate{
			Status:    types.EmbedStatusCompleted,
			Model:     "test-model",
			Vector:    []float32{1, 0, 0},
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("failed to update embedding: %v", err)
		}

		far, err := repo.Note().Create(ctx, &model.Note{Title: "Far", Content: "x"})
		if err != nil {
			t.Fatalf("failed to create note: %v", err)
		}
		if err := repo.Note().UpdateEmbedding(ctx, far.ID, model.EmbeddingUpdate{
			Status:    types.EmbedStatusCompleted,
			Model:     "test-model",
			Vector:    []float32{0, 1, 0},
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("failed to update embedding: %v", err)
		}

		// Pending note with no vector must not appear.
		if _, err := repo.Note().Create(ctx, &model.Note{Title: "Unembedded", Content: "x"}); err != nil {
			t.Fatalf("failed to create note: %v", err)
		}

		results, err := repo.Note().FindNearest(ctx, []float32{1, 0, 0}, 10, 0.5)
		if err != nil {
			t.Fatalf("failed to find nearest: %v", err)
		}

		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if results[0].Note.ID != near.ID {
			t.Errorf("expected note %s, got %s", near.ID, results[0].Note.ID)
		}
		if results[0].Score < 0.99 {
			t.Errorf("expected score close to 1, got %f", results[0].Score)
		}
	})

	t.Run("Count returns total", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if _, err := repo.Note().Create(ctx, &model.Note{
				Title:   string(model.NewNoteID()),
				Content: "x",
			}); err != nil {
				t.Fatalf("failed to create note: %v", err)
			}
		}

		count, err := repo.Note().Count(ctx)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("expected count=3, got %d", count)
		}
	})
}

func TestMemoryNoteRepository(t *testing.T) {
	runNoteRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestFirestoreNoteRepository(t *testing.T) {
	runNoteRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
		if projectID == "" {
			t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
		}

		repo, err := firestore.New(context.Background(), projectID,
			firestore.WithCollectionPrefix("test_"+string(model.NewNoteID())[:8]+"_"))
		if err != nil {
			t.Fatalf("failed to create firestore repository: %v", err)
		}
		t.Cleanup(func() {
			if err := repo.Close(); err != nil {
				t.Logf("failed to close repository: %v", err)
			}
		})
		return repo
	})
}
