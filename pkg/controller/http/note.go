package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/usecase"
)

type sourceMetaBody struct {
	Author string `json:"author,omitempty"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Year   int    `json:"year,omitempty"`
	Type   string `json:"type,omitempty"`
}

type noteResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Status    string          `json:"status"`
	NoteType  string          `json:"note_type"`
	Tags      []string        `json:"tags,omitempty"`
	Source    *sourceMetaBody `json:"source,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	EmbedStatus     string     `json:"embed_status"`
	EmbeddingModel  string     `json:"embedding_model,omitempty"`
	EmbedError      string     `json:"embed_error,omitempty"`
	EmbedRetryCount int        `json:"embed_retry_count"`
	EmbedUpdatedAt  *time.Time `json:"embed_updated_at,omitempty"`
}

func toNoteResponse(n *model.Note) *noteResponse {
	resp := &noteResponse{
		ID:              string(n.ID),
		Title:           n.Title,
		Content:         n.Content,
		Status:          n.Status.String(),
		NoteType:        n.NoteType.String(),
		Tags:            n.Tags,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
		EmbedStatus:     n.EmbedStatus.String(),
		EmbeddingModel:  n.EmbeddingModel,
		EmbedError:      n.EmbedError,
		EmbedRetryCount: n.EmbedRetryCount,
		EmbedUpdatedAt:  n.EmbedUpdatedAt,
	}
	if n.Source != nil {
		resp.Source = &sourceMetaBody{
			Author: n.Source.Author,
			Title:  n.Source.Title,
			URL:    n.Source.URL,
			Year:   n.Source.Year,
			Type:   n.Source.Type,
		}
	}
	return resp
}

func (b *sourceMetaBody) toModel() *model.SourceMeta {
	if b == nil {
		return nil
	}
	return &model.SourceMeta{
		Author: b.Author,
		Title:  b.Title,
		URL:    b.URL,
		Year:   b.Year,
		Type:   b.Type,
	}
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title    string          `json:"title"`
		Content  string          `json:"content"`
		Status   string          `json:"status"`
		NoteType string          `json:"note_type"`
		Tags     []string        `json:"tags"`
		Source   *sourceMetaBody `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, goerr.Wrap(model.ErrMissingContent, "invalid request body"))
		return
	}

	note, err := s.uc.CreateNote(r.Context(), usecase.CreateNoteInput{
		Title:    body.Title,
		Content:  body.Content,
		Status:   types.NoteStatus(body.Status),
		NoteType: types.NoteType(body.NoteType),
		Tags:     body.Tags,
		Source:   body.Source.toModel(),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, toNoteResponse(note))
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	status := types.NoteStatus(r.URL.Query().Get("status"))

	notes, err := s.uc.ListNotes(r.Context(), status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := struct {
		Notes []*noteResponse `json:"notes"`
	}{Notes: make([]*noteResponse, len(notes))}
	for i, n := range notes {
		resp.Notes[i] = toNoteResponse(n)
	}

	respondJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	id := model.NoteID(chi.URLParam(r, "noteID"))

	note, err := s.uc.GetNote(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toNoteResponse(note))
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id := model.NoteID(chi.URLParam(r, "noteID"))

	var body struct {
		Title    *string         `json:"title"`
		Content  *string         `json:"content"`
		Status   *string         `json:"status"`
		NoteType *string         `json:"note_type"`
		Tags     []string        `json:"tags"`
		Source   *sourceMetaBody `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, goerr.Wrap(model.ErrMissingContent, "invalid request body"))
		return
	}

	input := usecase.UpdateNoteInput{
		Title:   body.Title,
		Content: body.Content,
		Tags:    body.Tags,
		Source:  body.Source.toModel(),
	}
	if body.Status != nil {
		status := types.NoteStatus(*body.Status)
		input.Status = &status
	}
	if body.NoteType != nil {
		noteType := types.NoteType(*body.NoteType)
		input.NoteType = &noteType
	}

	note, err := s.uc.UpdateNote(r.Context(), id, input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toNoteResponse(note))
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := model.NoteID(chi.URLParam(r, "noteID"))

	if err := s.uc.DeleteNote(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
