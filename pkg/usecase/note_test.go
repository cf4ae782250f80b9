package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/repository/memory"
	"github.com/zettel-lab/kasten/pkg/service/enrich"
	"github.com/zettel-lab/kasten/pkg/usecase"
)

func drainOne(t *testing.T, q *enrich.Queue) enrich.Entry {
	t.Helper()
	select {
	case entry := <-q.Dequeue():
		return entry
	case <-time.After(time.Second):
		t.Fatal("expected an enqueued entry")
		return enrich.Entry{}
	}
}

func TestCreateNoteEnqueuesEnrichment(t *testing.T) {
	repo := memory.New()
	queue := enrich.NewQueue()
	defer queue.Close()

	uc := usecase.New(repo, usecase.WithQueue(queue))

	note, err := uc.CreateNote(context.Background(), usecase.CreateNoteInput{
		Title:   "Evergreen notes",
		Content: "Write notes for your future self.",
		Status:  types.NoteStatusPermanent,
	})
	gt.NoError(t, err).Required()

	gt.Value(t, note.EmbedStatus).Equal(types.EmbedStatusPending)
	gt.Value(t, drainOne(t, queue).NoteID).Equal(note.ID)
}

func TestCreateNoteRejectsDuplicateTitle(t *testing.T) {
	repo := memory.New()
	uc := usecase.New(repo)
	ctx := context.Background()

	_, err := uc.CreateNote(ctx, usecase.CreateNoteInput{Title: "Unique", Content: "x"})
	gt.NoError(t, err).Required()

	_, err = uc.CreateNote(ctx, usecase.CreateNoteInput{Title: "unique", Content: "y"})
	gt.Error(t, err).Is(model.ErrTitleConflict)
}

func TestCreateNoteRequiresTitleAndContent(t *testing.T) {
	uc := usecase.New(memory.New())
	ctx := context.Background()

	_, err := uc.CreateNote(ctx, usecase.CreateNoteInput{Content: "x"})
	gt.Error(t, err).Is(model.ErrMissingContent)

	_, err = uc.CreateNote(ctx, usecase.CreateNoteInput{Title: "x"})
	gt.Error(t, err).Is(model.ErrMissingContent)
}

func TestUpdateNoteContentChangeInvalidatesCompletedEmbedding(t *testing.T) {
	repo := memory.New()
	queue := enrich.NewQueue()
	defer queue.Close()

	uc := usecase.New(repo, usecase.WithQueue(queue))
	ctx := context.Background()

	note, err := uc.CreateNote(ctx, usecase.CreateNoteInput{
		Title:   "Editable",
		Content: "Original.",
	})
	gt.NoError(t, err).Required()
	drainOne(t, queue)

	gt.NoError(t, repo.Note().UpdateEmbedding(ctx, note.ID, model.EmbeddingUpdate{
		Status:    types.EmbedStatusCompleted,
		Model:     "test-model",
		Vector:    []float32{1, 2},
		UpdatedAt: time.Now().UTC(),
	})).Required()

	newContent := "Edited."
	updated, err := uc.UpdateNote(ctx, note.ID, usecase.UpdateNoteInput{Content: &newContent})
	gt.NoError(t, err).Required()

	// A completed vector goes Stale, never silently stays Completed.
	gt.Value(t, updated.EmbedStatus).Equal(types.EmbedStatusStale)
	gt.Value(t, drainOne(t, queue).NoteID).Equal(note.ID)

	stored, err := repo.Note().Get(ctx, note.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.EmbedStatus).Equal(types.EmbedStatusStale)
	gt.Value(t, stored.HasValidEmbedding()).Equal(false)
}

func TestUpdateNoteContentChangeWithoutEmbeddingStaysPending(t *testing.T) {
	repo := memory.New()
	queue := enrich.NewQueue()
	defer queue.Close()

	uc := usecase.New(repo, usecase.WithQueue(queue))
	ctx := context.Background()

	note, err := uc.CreateNote(ctx, usecase.CreateNoteInput{
		Title:   "Not yet embedded",
		Content: "Original.",
	})
	gt.NoError(t, err).Required()
	drainOne(t, queue)

	newContent := "Edited."
	updated, err := uc.UpdateNote(ctx, note.ID, usecase.UpdateNoteInput{Content: &newContent})
	gt.NoError(t, err).Required()

	gt.Value(t, updated.EmbedStatus).Equal(types.EmbedStatusPending)
	gt.Value(t, drainOne(t, queue).NoteID).Equal(note.ID)
}

func TestUpdateNoteStatusOnlyChangeKeepsEmbedding(t *testing.T) {
	repo := memory.New()
	queue := enrich.NewQueue()
	defer queue.Close()

	uc := usecase.New(repo, usecase.WithQueue(queue))
	ctx := context.Background()

	note, err := uc.CreateNote(ctx, usecase.CreateNoteInput{
		Title:   "Promotable",
		Content: "A fleeting idea.",
	})
	gt.NoError(t, err).Required()
	drainOne(t, queue)

	gt.NoError(t, repo.Note().UpdateEmbedding(ctx, note.ID, model.EmbeddingUpdate{
		Status:    types.EmbedStatusCompleted,
		Model:     "test-model",
		Vector:    []float32{1},
		UpdatedAt: time.Now().UTC(),
	})).Required()

	status := types.NoteStatusPermanent
	updated, err := uc.UpdateNote(ctx, note.ID, usecase.UpdateNoteInput{Status: &status})
	gt.NoError(t, err).Required()

	gt.Value(t, updated.Status).Equal(types.NoteStatusPermanent)
	gt.Value(t, updated.EmbedStatus).Equal(types.EmbedStatusCompleted)

	// No text change, no re-enqueue.
	select {
	case entry := <-queue.Dequeue():
		t.Fatalf("unexpected enqueue: %v", entry.NoteID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCreateCapturedNoteBuildsFleetingNote(t *testing.T) {
	repo := memory.New()
	queue := enrich.NewQueue()
	defer queue.Close()

	uc := usecase.New(repo, usecase.WithQueue(queue))

	note, err := uc.CreateCapturedNote(context.Background(), &model.CaptureMessage{
		MessageID:  "msg-1",
		RawBody:    "Quick thought from chat\nwith a second line.",
		ChannelTag: "inbox",
		ReceivedAt: time.Now().UTC(),
	})
	gt.NoError(t, err).Required()

	gt.Value(t, note.Status).Equal(types.NoteStatusFleeting)
	gt.Value(t, note.Title).Equal("Quick thought from chat")
	gt.A(t, note.Tags).Length(1)
	gt.Value(t, note.Tags[0]).Equal("inbox")
	gt.Value(t, drainOne(t, queue).NoteID).Equal(note.ID)
}

func TestCreateCapturedNoteRejectsEmptyBody(t *testing.T) {
	uc := usecase.New(memory.New())

	_, err := uc.CreateCapturedNote(context.Background(), &model.CaptureMessage{
		MessageID: "msg-1",
		RawBody:   "   ",
	})
	gt.Error(t, err).Is(model.ErrMissingContent)
}
