package model

import "github.com/m-mizutani/goerr/v2"

// Shared domain errors. Repositories wrap these so callers can classify
// failures without knowing the backend.
var (
	ErrNoteNotFound   = goerr.New("note not found")
	ErrTitleConflict  = goerr.New("note title already exists")
	ErrMissingContent = goerr.New("note content is required")
)
