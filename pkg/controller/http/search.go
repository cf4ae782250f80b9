package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/utils/errutil"
)

type searchResultBody struct {
	Note         *noteResponse `json:"note"`
	Score        float64       `json:"score"`
	Snippet      string        `json:"snippet,omitempty"`
	TextRank     int           `json:"text_rank,omitempty"`
	SemanticRank int           `json:"semantic_rank,omitempty"`
}

type searchResponseBody struct {
	Results  []*searchResultBody `json:"results"`
	Degraded bool                `json:"degraded,omitempty"`
	Warning  string              `json:"warning,omitempty"`
}

func toSearchResponseBody(resp *model.SearchResponse) *searchResponseBody {
	body := &searchResponseBody{
		Results:  make([]*searchResultBody, len(resp.Results)),
		Degraded: resp.Degraded,
		Warning:  resp.Warning,
	}
	for i, r := range resp.Results {
		body.Results[i] = &searchResultBody{
			Note:         toNoteResponse(r.Note),
			Score:        r.Score,
			Snippet:      r.Snippet,
			TextRank:     r.TextRank,
			SemanticRank: r.SemanticRank,
		}
	}
	return body
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	mode, err := types.ParseSearchMode(r.URL.Query().Get("mode"))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
		return
	}

	resp, err := s.uc.Search(r.Context(), query, mode, queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toSearchResponseBody(resp))
}

func (s *Server) relatedNotes(w http.ResponseWriter, r *http.Request) {
	id := model.NoteID(chi.URLParam(r, "noteID"))

	resp, err := s.uc.RelatedNotes(r.Context(), id, queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toSearchResponseBody(resp))
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	resp, err := s.uc.DiscoverNotes(r.Context(), queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toSearchResponseBody(resp))
}
