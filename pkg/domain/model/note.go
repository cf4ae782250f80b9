package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/zettel-lab/kasten/pkg/domain/types"
)

// EmbeddingDimension is the dimension of the embedding vector.
// All providers are requested to produce 768-dimensional vectors so that
// stored vectors stay comparable when the provider changes.
const EmbeddingDimension = 768

// NoteID is a UUID-based identifier for Note
type NoteID string

// NewNoteID generates a new UUID v4 NoteID
func NewNoteID() NoteID {
	return NoteID(uuid.New().String())
}

// SourceMeta holds bibliographic metadata for source notes
type SourceMeta struct {
	Author string
	Title  string
	URL    string
	Year   int
	Type   string
}

// Note represents a single note in the knowledge base, including the
// embedding state the enrichment pipeline drives.
type Note struct {
	ID       NoteID
	Title    string
	Content  string
	Status   types.NoteStatus
	NoteType types.NoteType
	Tags     []string
	Source   *SourceMeta

	// Embedding fields. Invariant: EmbedStatus == Completed exactly when
	// Embedding is non-empty and EmbeddingModel is set.
	EmbedStatus     types.EmbedStatus
	EmbeddingModel  string
	EmbedError      string
	EmbedRetryCount int
	EmbedUpdatedAt  *time.Time
	Embedding       []float32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasValidEmbedding reports whether the note's vector is authoritative for
// semantic search.
func (n *Note) HasValidEmbedding() bool {
	return n.EmbedStatus == types.EmbedStatusCompleted &&
		len(n.Embedding) > 0 && n.EmbeddingModel != ""
}

// Clone returns a deep copy of the note
func (n *Note) Clone() *Note {
	copied := *n
	if n.Tags != nil {
		copied.Tags = make([]string, len(n.Tags))
		copy(copied.Tags, n.Tags)
	}
	if n.Source != nil {
		src := *n.Source
		copied.Source = &src
	}
	if n.Embedding != nil {
		copied.Embedding = make([]float32, len(n.Embedding))
		copy(copied.Embedding, n.Embedding)
	}
	if n.EmbedUpdatedAt != nil {
		at := *n.EmbedUpdatedAt
		copied.EmbedUpdatedAt = &at
	}
	return &copied
}

// EmbeddingUpdate is the atomic patch the embedding worker applies to a
// note's embedding fields. All fields are written in a single store update so
// a vector can never be observed with a mismatched status.
type EmbeddingUpdate struct {
	Status     types.EmbedStatus
	Model      string
	Error      string
	RetryCount int
	Vector     []float32
	UpdatedAt  time.Time
}
