package session

import "errors"

var (
	// ErrInvalidInput reports an empty or malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotReady reports a question asked before any ingestion batch
	// has produced usable content.
	ErrNotReady = errors.New("session has no ingested content")
	// ErrSessionNotFound reports an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")
)
