package model

import "time"

// EdgeKind distinguishes how two notes are connected in the health graph
type EdgeKind string

const (
	EdgeKindLink       EdgeKind = "LINK"
	EdgeKindSimilarity EdgeKind = "SIMILARITY"
)

// GraphEdge is an ephemeral edge in the per-run health graph. Edges are
// derived from note content and embeddings and never persisted.
type GraphEdge struct {
	Source NoteID
	Target NoteID
	Kind   EdgeKind
	Weight float64
}

// Island is a connected component smaller than the main graph
type Island struct {
	Size    int
	NoteIDs []NoteID
}

// DanglingLink records a [[Title]] reference that resolves to no note
type DanglingLink struct {
	NoteID      NoteID
	TargetTitle string
}

// DuplicateCandidate is a pair of notes similar enough to be merge
// candidates. Pairs are order-independent: A is always the smaller note ID.
type DuplicateCandidate struct {
	A          NoteID
	B          NoteID
	Similarity float64
}

// HealthReport aggregates the structural health of the permanent note corpus
type HealthReport struct {
	GeneratedAt         time.Time
	TotalNotes          int
	OrphanCount         int
	Orphans             []NoteID
	MainGraphSize       int
	Islands             []Island
	DanglingLinks       []DanglingLink
	DuplicateCandidates []DuplicateCandidate
	SplitCandidates     []NoteID
	Duration            time.Duration
}
