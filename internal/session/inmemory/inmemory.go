package inmemory

import (
	"context"
	"sync"
	"time"

	"newsight/internal/session"
)

// Store keeps sessions in process memory. Expired sessions are dropped
// lazily on access.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	ttl      time.Duration
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Store{sessions: make(map[string]*session.Session), ttl: ttl}
}

func (store *Store) Create(ctx context.Context) (*session.Session, error) {
	sess, err := session.NewSession(store.ttl)
	if err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.sessions[sess.ID()] = sess
	return sess, nil
}

func (store *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	store.mu.RLock()
	sess, ok := store.sessions[id]
	store.mu.RUnlock()
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if sess.Expired() {
		store.mu.Lock()
		delete(store.sessions, id)
		store.mu.Unlock()
		return nil, session.ErrSessionNotFound
	}
	sess.Expire(store.ttl)
	return sess, nil
}

func (store *Store) Save(ctx context.Context, s *session.Session) error {
	return nil // sessions live in memory already
}
