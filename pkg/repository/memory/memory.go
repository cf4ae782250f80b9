package memory

import (
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	note *noteRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		note: newNoteRepository(),
	}
}

func (m *Memory) Note() interfaces.NoteRepository {
	return m.note
}

func (m *Memory) Close() error {
	return nil
}
