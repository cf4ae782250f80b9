package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/utils/logging"
)

const captureTitleMaxLen = 80

// CreateNoteInput is the caller-supplied part of a new note
type CreateNoteInput struct {
	Title    string
	Content  string
	Status   types.NoteStatus
	NoteType types.NoteType
	Tags     []string
	Source   *model.SourceMeta
}

// CreateNote creates a note and schedules it for embedding
func (u *UseCases) CreateNote(ctx context.Context, input CreateNoteInput) (*model.Note, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, goerr.Wrap(model.ErrMissingContent, "title is required")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, goerr.Wrap(model.ErrMissingContent, "content is required")
	}

	if _, err := u.repo.Note().GetByTitle(ctx, title); err == nil {
		return nil, goerr.Wrap(model.ErrTitleConflict, "a note with this title already exists",
			goerr.V("title", title))
	} else if !errors.Is(err, model.ErrNoteNotFound) {
		return nil, goerr.Wrap(err, "failed to check title uniqueness")
	}

	note := &model.Note{
		Title:       title,
		Content:     input.Content,
		Status:      input.Status.Normalize(),
		NoteType:    input.NoteType.Normalize(),
		Tags:        input.Tags,
		Source:      input.Source,
		EmbedStatus: types.EmbedStatusPending,
	}

	created, err := u.repo.Note().Create(ctx, note)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create note")
	}

	u.EnqueueEnrichment(created.ID)
	return created, nil
}

// UpdateNoteInput carries the fields an update may change. Nil fields keep
// the current value.
type UpdateNoteInput struct {
	Title    *string
	Content  *string
	Status   *types.NoteStatus
	NoteType *types.NoteType
	Tags     []string
	Source   *model.SourceMeta
}

// UpdateNote applies the input to a note. A text change invalidates the
// stored vector: the note moves to Stale when a completed embedding exists,
// otherwise back to Pending, and is re-enqueued. A note is never left
// Completed with a vector of its old text.
func (u *UseCases) UpdateNote(ctx context.Context, id model.NoteID, input UpdateNoteInput) (*model.Note, error) {
	note, err := u.repo.Note().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load note", goerr.V("id", id))
	}

	textChanged := false
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, goerr.Wrap(model.ErrMissingContent, "title is required")
		}
		if title != note.Title {
			if other, err := u.repo.Note().GetByTitle(ctx, title); err == nil && other.ID != id {
				return nil, goerr.Wrap(model.ErrTitleConflict, "a note with this title already exists",
					goerr.V("title", title))
			} else if err != nil && !errors.Is(err, model.ErrNoteNotFound) {
				return nil, goerr.Wrap(err, "failed to check title uniqueness")
			}
			note.Title = title
			textChanged = true
		}
	}
	if input.Content != nil && *input.Content != note.Content {
		if strings.TrimSpace(*input.Content) == "" {
			return nil, goerr.Wrap(model.ErrMissingContent, "content is required")
		}
		note.Content = *input.Content
		textChanged = true
	}
	if input.Status != nil {
		note.Status = input.Status.Normalize()
	}
	if input.NoteType != nil {
		note.NoteType = input.NoteType.Normalize()
	}
	if input.Tags != nil {
		note.Tags = input.Tags
	}
	if input.Source != nil {
		note.Source = input.Source
	}

	updated, err := u.repo.Note().Update(ctx, note)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update note", goerr.V("id", id))
	}

	if textChanged {
		status := types.EmbedStatusPending
		if updated.HasValidEmbedding() {
			status = types.EmbedStatusStale
		}
		if err := u.repo.Note().UpdateEmbedding(ctx, id, model.EmbeddingUpdate{
			Status:     status,
			Model:      updated.EmbeddingModel,
			RetryCount: updated.EmbedRetryCount,
			Vector:     updated.Embedding,
			UpdatedAt:  time.Now().UTC(),
		}); err != nil {
			return nil, goerr.Wrap(err, "failed to invalidate embedding", goerr.V("id", id))
		}
		updated.EmbedStatus = status
		u.EnqueueEnrichment(id)
	}

	return updated, nil
}

// GetNote retrieves a note by ID
func (u *UseCases) GetNote(ctx context.Context, id model.NoteID) (*model.Note, error) {
	return u.repo.Note().Get(ctx, id)
}

// ListNotes retrieves notes, optionally filtered by status
func (u *UseCases) ListNotes(ctx context.Context, status types.NoteStatus) ([]*model.Note, error) {
	return u.repo.Note().List(ctx, status)
}

// DeleteNote deletes a note. An embedding attempt already in flight for the
// note drops itself when the store reports the note gone.
func (u *UseCases) DeleteNote(ctx context.Context, id model.NoteID) error {
	if err := u.repo.Note().Delete(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete note", goerr.V("id", id))
	}
	return nil
}

// CreateCapturedNote turns an external capture message into a Fleeting note
// and schedules it for embedding. Called by the capture poller.
func (u *UseCases) CreateCapturedNote(ctx context.Context, msg *model.CaptureMessage) (*model.Note, error) {
	body := strings.TrimSpace(msg.RawBody)
	if body == "" {
		return nil, goerr.Wrap(model.ErrMissingContent, "capture message has no body",
			goerr.V("message_id", msg.MessageID))
	}

	var tags []string
	if msg.ChannelTag != "" {
		tags = []string{msg.ChannelTag}
	}

	note := &model.Note{
		Title:       captureTitle(body),
		Content:     body,
		Status:      types.NoteStatusFleeting,
		NoteType:    types.NoteTypeRegular,
		Tags:        tags,
		EmbedStatus: types.EmbedStatusPending,
	}

	created, err := u.repo.Note().Create(ctx, note)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create captured note",
			goerr.V("message_id", msg.MessageID))
	}

	logging.From(ctx).Info("captured note created",
		"note_id", created.ID,
		"message_id", msg.MessageID,
		"channel_tag", msg.ChannelTag)

	u.EnqueueEnrichment(created.ID)
	return created, nil
}

// captureTitle derives a title from the first line of the capture body
func captureTitle(body string) string {
	title := body
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > captureTitleMaxLen {
		runes := []rune(title)
		title = string(runes[:captureTitleMaxLen])
	}
	return title
}
