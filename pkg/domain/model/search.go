package model

// SearchResult is a single ranked note returned by the search engine
type SearchResult struct {
	Note    *Note
	Score   float64
	Snippet string

	// Rank positions in the underlying lists for hybrid queries (1-indexed,
	// 0 when the note was absent from that list).
	TextRank     int
	SemanticRank int
}

// SearchResponse is the ordered result set of a search query. Degraded is
// set when a hybrid query fell back to full-text only because semantic
// scoring failed; Warning carries the reason.
type SearchResponse struct {
	Results  []*SearchResult
	Degraded bool
	Warning  string
}
