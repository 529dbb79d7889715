package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsight/internal/index"
	"newsight/internal/models"
)

// Session owns one ingestion batch and the retrieval index built from
// it. Submitting a new batch replaces the previous one wholesale: the
// old index is discarded and any in-flight ingestion is cancelled.
type Session struct {
	mu        sync.RWMutex
	id        string
	state     models.SessionState
	docs      map[string]models.Document
	outcomes  []models.URLOutcome
	idx       *index.Index
	createdAt time.Time
	updatedAt time.Time
	expiresAt time.Time

	batch        uint64 // current ingestion batch token
	cancelIngest context.CancelFunc
}

// Info is the read-only snapshot exposed over the API.
type Info struct {
	ID        string              `json:"id"`
	State     models.SessionState `json:"state"`
	Documents []models.Document   `json:"documents,omitempty"`
	Outcomes  []models.URLOutcome `json:"outcomes,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func NewSession(ttl time.Duration) (*Session, error) {
	idx, err := index.New()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		id:        uuid.NewString(),
		state:     models.SessionEmpty,
		docs:      make(map[string]models.Document),
		idx:       idx,
		createdAt: now,
		updatedAt: now,
		expiresAt: now.Add(ttl),
	}, nil
}

// Restore rebuilds a session from a persisted snapshot plus its
// chunks, re-indexing them in their original id order.
func Restore(info Info, chunks []models.Chunk, ttl time.Duration) (*Session, error) {
	idx, err := index.New()
	if err != nil {
		return nil, err
	}
	if _, err := idx.Add(chunks); err != nil {
		return nil, err
	}
	docs := make(map[string]models.Document, len(info.Documents))
	for _, d := range info.Documents {
		docs[d.URL] = d
	}
	return &Session{
		id:        info.ID,
		state:     info.State,
		docs:      docs,
		outcomes:  info.Outcomes,
		idx:       idx,
		createdAt: info.CreatedAt,
		updatedAt: info.UpdatedAt,
		expiresAt: time.Now().Add(ttl),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Index returns the session's retrieval index. The pointer is only
// valid for the current batch; BeginIngest replaces it.
func (s *Session) Index() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

func (s *Session) Expire(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresAt = time.Now().Add(ttl)
}

func (s *Session) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Now().After(s.expiresAt)
}

// BeginIngest transitions the session to ingesting for a new batch of
// urls, discarding all prior content. Any in-flight ingestion for the
// previous batch is cancelled; cancel is retained so the next batch
// can do the same to this one. The returned token identifies the
// batch: RecordDocument, AddChunks and CompleteIngest discard calls
// whose token is no longer current, so a superseded batch can never
// write into its replacement.
func (s *Session) BeginIngest(urls []string, cancel context.CancelFunc) (uint64, error) {
	idx, err := index.New()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelIngest != nil {
		s.cancelIngest()
	}
	s.cancelIngest = cancel
	s.batch++
	s.idx = idx
	s.docs = make(map[string]models.Document, len(urls))
	for _, u := range urls {
		s.docs[u] = models.Document{URL: u, Status: models.DocumentPending}
	}
	s.outcomes = nil
	s.state = models.SessionIngesting
	s.updatedAt = time.Now()
	return s.batch, nil
}

// RecordDocument stores a document's final fetch result for the given
// batch. Stale batches are ignored.
func (s *Session) RecordDocument(batch uint64, doc models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch != s.batch {
		return
	}
	s.docs[doc.URL] = doc
	s.updatedAt = time.Now()
}

// AddChunks indexes chunks for the given batch. Stale batches are
// ignored without error.
func (s *Session) AddChunks(batch uint64, chunks []models.Chunk) error {
	s.mu.Lock()
	if batch != s.batch {
		s.mu.Unlock()
		return nil
	}
	idx := s.idx
	s.mu.Unlock()
	_, err := idx.Add(chunks)
	return err
}

// CompleteIngest records per-URL outcomes and resolves the batch
// state: all succeeded means ready, some means partially ready, none
// means failed. Reports whether the completion applied; a completion
// carrying a superseded token is discarded.
func (s *Session) CompleteIngest(batch uint64, outcomes []models.URLOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch != s.batch {
		return false
	}
	s.outcomes = outcomes
	ok := 0
	for _, o := range outcomes {
		if o.OK {
			ok++
		}
	}
	switch {
	case len(outcomes) == 0:
		s.state = models.SessionEmpty
	case ok == len(outcomes):
		s.state = models.SessionReady
	case ok > 0:
		s.state = models.SessionPartiallyReady
	default:
		s.state = models.SessionFailed
	}
	s.cancelIngest = nil
	s.updatedAt = time.Now()
	return true
}

// EnsureAskable reports whether questions can be answered right now.
func (s *Session) EnsureAskable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case models.SessionReady, models.SessionPartiallyReady:
		return nil
	default:
		return ErrNotReady
	}
}

// Snapshot returns a copy of the session's visible state.
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	outcomes := make([]models.URLOutcome, len(s.outcomes))
	copy(outcomes, s.outcomes)
	return Info{
		ID:        s.id,
		State:     s.state,
		Documents: docs,
		Outcomes:  outcomes,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}
