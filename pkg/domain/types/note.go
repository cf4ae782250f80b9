package types

import "fmt"

// NoteStatus represents whether a note has been organized into the
// permanent graph or is still a quick capture
type NoteStatus string

const (
	NoteStatusPermanent NoteStatus = "PERMANENT"
	NoteStatusFleeting  NoteStatus = "FLEETING"
)

// IsValid checks if the note status is valid
func (s NoteStatus) IsValid() bool {
	switch s {
	case NoteStatusPermanent, NoteStatusFleeting:
		return true
	default:
		return false
	}
}

// Normalize returns the status, treating empty as NoteStatusFleeting.
func (s NoteStatus) Normalize() NoteStatus {
	if s == "" {
		return NoteStatusFleeting
	}
	return s
}

// String returns the string representation of the note status
func (s NoteStatus) String() string {
	return string(s)
}

// ParseNoteStatus parses a string into a NoteStatus
func ParseNoteStatus(s string) (NoteStatus, error) {
	status := NoteStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid note status: %s", s)
	}
	return status, nil
}

// NoteType classifies the role a note plays in the knowledge base
type NoteType string

const (
	NoteTypeRegular   NoteType = "REGULAR"
	NoteTypeStructure NoteType = "STRUCTURE"
	NoteTypeSource    NoteType = "SOURCE"
)

// IsValid checks if the note type is valid
func (t NoteType) IsValid() bool {
	switch t {
	case NoteTypeRegular, NoteTypeStructure, NoteTypeSource:
		return true
	default:
		return false
	}
}

// Normalize returns the type, treating empty as NoteTypeRegular.
func (t NoteType) Normalize() NoteType {
	if t == "" {
		return NoteTypeRegular
	}
	return t
}

// String returns the string representation of the note type
func (t NoteType) String() string {
	return string(t)
}

// ParseNoteType parses a string into a NoteType
func ParseNoteType(s string) (NoteType, error) {
	noteType := NoteType(s)
	if !noteType.IsValid() {
		return "", fmt.Errorf("invalid note type: %s", s)
	}
	return noteType, nil
}
