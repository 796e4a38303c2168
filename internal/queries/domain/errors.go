package domain

import "errors"

var (
	ErrQueryNotFound         = errors.New("query not found")
	ErrVisualizationNotFound = errors.New("visualization not found")

	// ErrVersionConflict means the stored version advanced past the one
	// the client last read. Maps to HTTP 409; never retried automatically.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNothingToSave is the collaborator's "no deferred result" signal:
	// the draft matches what is already persisted.
	ErrNothingToSave = errors.New("nothing to save")

	ErrSessionClosed   = errors.New("edit session closed")
	ErrSessionNotFound = errors.New("edit session not found")
)
