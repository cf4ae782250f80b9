package firestore

import (
	"context"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/utils/textscore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// noteDoc is the Firestore document representation of model.Note.
// Embedding is stored as firestore.Vector32 so that FindNearest vector
// search works against the cosine vector index.
type noteDoc struct {
	ID              model.NoteID       `firestore:"ID"`
	Title           string             `firestore:"Title"`
	TitleKey        string             `firestore:"TitleKey"`
	Content         string             `firestore:"Content"`
	Status          string             `firestore:"Status"`
	NoteType        string             `firestore:"NoteType"`
	Tags            []string           `firestore:"Tags,omitempty"`
	SourceAuthor    string             `firestore:"SourceAuthor,omitempty"`
	SourceTitle     string             `firestore:"SourceTitle,omitempty"`
	SourceURL       string             `firestore:"SourceURL,omitempty"`
	SourceYear      int                `firestore:"SourceYear,omitempty"`
	SourceType      string             `firestore:"SourceType,omitempty"`
	EmbedStatus     string             `firestore:"EmbedStatus"`
	EmbeddingModel  string             `firestore:"EmbeddingModel,omitempty"`
	EmbedError      string             `firestore:"EmbedError,omitempty"`
	EmbedRetryCount int                `firestore:"EmbedRetryCount"`
	EmbedUpdatedAt  *time.Time         `firestore:"EmbedUpdatedAt,omitempty"`
	Embedding       firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt       time.Time          `firestore:"CreatedAt"`
	UpdatedAt       time.Time          `firestore:"UpdatedAt"`

	// Populated by FindNearest queries only, never written by us.
	VectorDistance float64 `firestore:"vector_distance,omitempty"`
}

func toNoteDoc(n *model.Note) *noteDoc {
	doc := &noteDoc{
		ID:              n.ID,
		Title:           n.Title,
		TitleKey:        titleKey(n.Title),
		Content:         n.Content,
		Status:          n.Status.String(),
		NoteType:        n.NoteType.String(),
		Tags:            n.Tags,
		EmbedStatus:     n.EmbedStatus.String(),
		EmbeddingModel:  n.EmbeddingModel,
		EmbedError:      n.EmbedError,
		EmbedRetryCount: n.EmbedRetryCount,
		EmbedUpdatedAt:  n.EmbedUpdatedAt,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
	}
	if n.Source != nil {
		doc.SourceAuthor = n.Source.Author
		doc.SourceTitle = n.Source.Title
		doc.SourceURL = n.Source.URL
		doc.SourceYear = n.Source.Year
		doc.SourceType = n.Source.Type
	}
	if len(n.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(n.Embedding)
	}
	return doc
}

func fromNoteDoc(d *noteDoc) *model.Note {
	n := &model.Note{
		ID:              d.ID,
		Title:           d.Title,
		Content:         d.Content,
		Status:          types.NoteStatus(d.Status),
		NoteType:        types.NoteType(d.NoteType),
		Tags:            d.Tags,
		EmbedStatus:     types.EmbedStatus(d.EmbedStatus),
		EmbeddingModel:  d.EmbeddingModel,
		EmbedError:      d.EmbedError,
		EmbedRetryCount: d.EmbedRetryCount,
		EmbedUpdatedAt:  d.EmbedUpdatedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.SourceAuthor != "" || d.SourceTitle != "" || d.SourceURL != "" || d.SourceType != "" || d.SourceYear != 0 {
		n.Source = &model.SourceMeta{
			Author: d.SourceAuthor,
			Title:  d.SourceTitle,
			URL:    d.SourceURL,
			Year:   d.SourceYear,
			Type:   d.SourceType,
		}
	}
	if len(d.Embedding) > 0 {
		n.Embedding = []float32(d.Embedding)
	}
	return n
}

func docToNote(doc *firestore.DocumentSnapshot) (*model.Note, error) {
	var d noteDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return fromNoteDoc(&d), nil
}

type noteRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newNoteRepository(client *firestore.Client) *noteRepository {
	return &noteRepository{
		client: client,
	}
}

func (r *noteRepository) notesCollection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "notes")
}

func (r *noteRepository) Create(ctx context.Context, note *model.Note) (*model.Note, error) {
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

	docRef := r.notesCollection().Doc(string(created.ID))
	if _, err := docRef.Set(ctx, toNoteDoc(created)); err != nil {
		return nil, goerr.Wrap(err, "failed to create note", goerr.V("id", created.ID))
	}

	return created, nil
}

func (r *noteRepository) Get(ctx context.Context, id model.NoteID) (*model.Note, error) {
	doc, err := r.notesCollection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get note", goerr.V("id", id))
	}

	note, err := docToNote(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal note", goerr.V("id", id))
	}

	return note, nil
}

func (r *noteRepository) GetByTitle(ctx context.Context, title string) (*model.Note, error) {
	iter := r.notesCollection().Where("TitleKey", "==", titleKey(title)).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, goerr.Wrap(model.ErrNoteNotFound, "note not found by title", goerr.V("title", title))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query note by title", goerr.V("title", title))
	}

	return docToNote(doc)
}

// Update replaces the content fields in a transaction so the embedding
// fields owned by UpdateEmbedding are preserved as stored.
func (r *noteRepository) Update(ctx context.Context, note *model.Note) (*model.Note, error) {
	docRef := r.notesCollection().Doc(string(note.ID))
	var updated *model.Note

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", note.ID))
			}
			return goerr.Wrap(err, "failed to get note for update", goerr.V("id", note.ID))
		}

		existing, err := docToNote(doc)
		if err != nil {
			return goerr.Wrap(err, "failed to unmarshal note", goerr.V("id", note.ID))
		}

		merged := note.Clone()
		merged.EmbedStatus = existing.EmbedStatus
		merged.EmbeddingModel = existing.EmbeddingModel
		merged.EmbedError = existing.EmbedError
		merged.EmbedRetryCount = existing.EmbedRetryCount
		merged.EmbedUpdatedAt = existing.EmbedUpdatedAt
		merged.Embedding = existing.Embedding
		merged.CreatedAt = existing.CreatedAt
		merged.UpdatedAt = time.Now().UTC()

		updated = merged
		return tx.Set(docRef, toNoteDoc(merged))
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *noteRepository) Delete(ctx context.Context, id model.NoteID) error {
	docRef := r.notesCollection().Doc(string(id))
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to get note for delete", goerr.V("id", id))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete note", goerr.V("id", id))
	}
	return nil
}

func (r *noteRepository) List(ctx context.Context, noteStatus types.NoteStatus) ([]*model.Note, error) {
	q := r.notesCollection().Query
	if noteStatus != "" {
		q = q.Where("Status", "==", noteStatus.String())
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var notes []*model.Note
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list notes")
		}
		note, err := docToNote(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal note")
		}
		notes = append(notes, note)
	}

	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})

	return notes, nil
}

func (r *noteRepository) ListIDsByEmbedStatus(ctx context.Context, statuses ...types.EmbedStatus) ([]model.NoteID, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = s.String()
	}

	iter := r.notesCollection().Where("EmbedStatus", "in", values).Documents(ctx)
	defer iter.Stop()

	var ids []model.NoteID
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list notes by embed status")
		}
		ids = append(ids, model.NoteID(doc.Ref.ID))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UpdateEmbedding writes all embedding fields in one document update so a
// reader never sees a vector with a mismatched status.
func (r *noteRepository) UpdateEmbedding(ctx context.Context, id model.NoteID, update model.EmbeddingUpdate) error {
	at := update.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := []firestore.Update{
		{Path: "EmbedStatus", Value: update.Status.String()},
		{Path: "EmbeddingModel", Value: update.Model},
		{Path: "EmbedError", Value: update.Error},
		{Path: "EmbedRetryCount", Value: update.RetryCount},
		{Path: "EmbedUpdatedAt", Value: at},
	}
	if len(update.Vector) > 0 {
		updates = append(updates, firestore.Update{Path: "Embedding", Value: firestore.Vector32(update.Vector)})
	} else {
		updates = append(updates, firestore.Update{Path: "Embedding", Value: firestore.Delete})
	}

	if _, err := r.notesCollection().Doc(string(id)).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNoteNotFound, "note not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to update embedding", goerr.V("id", id))
	}

	return nil
}

// SearchText streams the corpus and scores it client side with the shared
// lexical scorer. Firestore has no full-text index; at personal-corpus scale
// this keeps ranking identical to the in-memory backend.
func (r *noteRepository) SearchText(ctx context.Context, query string, limit int) ([]*model.SearchResult, error) {
	notes, err := r.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var results []*model.SearchResult
	for _, note := range notes {
		score := textscore.Score(query, note.Title, note.Content)
		if score <= 0 {
			continue
		}
		results = append(results, &model.SearchResult{
			Note:    note,
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
	if limit <= 0 {
		limit = 20
	}

	vq := r.notesCollection().
		Where("EmbedStatus", "==", types.EmbedStatusCompleted.String()).
		FindNearest("Embedding", firestore.Vector32(vector), limit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: "vector_distance"})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var results []*model.SearchResult
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to run vector search")
		}

		var d noteDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal note")
		}

		// Firestore reports cosine distance; convert to similarity.
		score := 1 - d.VectorDistance
		if score < minScore {
			continue
		}
		results = append(results, &model.SearchResult{
			Note:  fromNoteDoc(&d),
			Score: score,
		})
	}

	sortResults(results)
	return results, nil
}

func (r *noteRepository) Count(ctx context.Context) (int, error) {
	iter := r.notesCollection().Select().Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count notes")
		}
		count++
	}

	return count, nil
}

func sortResults(results []*model.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Note.UpdatedAt.After(results[j].Note.UpdatedAt)
	})
}

// titleKey normalizes titles for exact-match lookup, matching the in-memory
// backend's resolution of [[Title]] references.
func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
