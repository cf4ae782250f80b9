package types

import "fmt"

// SearchMode selects the retrieval strategy of the search engine
type SearchMode string

const (
	SearchModeFullText SearchMode = "FULLTEXT"
	SearchModeSemantic SearchMode = "SEMANTIC"
	SearchModeHybrid   SearchMode = "HYBRID"
)

// IsValid checks if the search mode is valid
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeFullText, SearchModeSemantic, SearchModeHybrid:
		return true
	default:
		return false
	}
}

// String returns the string representation of the search mode
func (m SearchMode) String() string {
	return string(m)
}

// ParseSearchMode parses a string into a SearchMode. Empty defaults to hybrid.
func ParseSearchMode(s string) (SearchMode, error) {
	if s == "" {
		return SearchModeHybrid, nil
	}
	mode := SearchMode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid search mode: %s", s)
	}
	return mode, nil
}
