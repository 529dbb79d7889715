package session

import "context"

// Store tracks live sessions. Implementations keep the retrieval index
// in process memory; what persistence they add beyond that is up to
// them.
type Store interface {
	// Create makes a fresh empty session.
	Create(ctx context.Context) (*Session, error)
	// Get returns the session with the given id, refreshing its TTL.
	// Unknown or expired ids return ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Save persists the session's current snapshot.
	Save(ctx context.Context, s *Session) error
}
