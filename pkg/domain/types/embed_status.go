package types

import "fmt"

// EmbedStatus represents the embedding lifecycle state of a note
type EmbedStatus string

const (
	EmbedStatusPending    EmbedStatus = "PENDING"
	EmbedStatusProcessing EmbedStatus = "PROCESSING"
	EmbedStatusCompleted  EmbedStatus = "COMPLETED"
	EmbedStatusFailed     EmbedStatus = "FAILED"
	// EmbedStatusStale marks a note whose content changed after a vector was
	// stored. The old vector must not be used for semantic search.
	EmbedStatusStale EmbedStatus = "STALE"
)

// AllEmbedStatuses returns all valid embedding statuses
func AllEmbedStatuses() []EmbedStatus {
	return []EmbedStatus{
		EmbedStatusPending,
		EmbedStatusProcessing,
		EmbedStatusCompleted,
		EmbedStatusFailed,
		EmbedStatusStale,
	}
}

// IsValid checks if the embedding status is valid
func (s EmbedStatus) IsValid() bool {
	switch s {
	case EmbedStatusPending,
		EmbedStatusProcessing,
		EmbedStatusCompleted,
		EmbedStatusFailed,
		EmbedStatusStale:
		return true
	default:
		return false
	}
}

// NeedsEmbedding reports whether a note in this state should be re-enqueued
// by the startup reconciliation scan.
func (s EmbedStatus) NeedsEmbedding() bool {
	return s == EmbedStatusPending || s == EmbedStatusStale
}

// Normalize returns the status, treating empty as EmbedStatusPending.
func (s EmbedStatus) Normalize() EmbedStatus {
	if s == "" {
		return EmbedStatusPending
	}
	return s
}

// String returns the string representation of the embedding status
func (s EmbedStatus) String() string {
	return string(s)
}

// ParseEmbedStatus parses a string into an EmbedStatus
func ParseEmbedStatus(s string) (EmbedStatus, error) {
	status := EmbedStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid embed status: %s", s)
	}
	return status, nil
}
