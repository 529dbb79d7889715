package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"newsight/config"
	"newsight/internal/chunk"
	"newsight/internal/embed"
	"newsight/internal/fetch"
	"newsight/internal/helpers"
	"newsight/internal/models"
	"newsight/internal/session"
)

const DefaultMaxConcurrent = 5

// Service runs ingestion batches: fetch, chunk, embed and index every
// URL of a batch concurrently, bounded by a worker budget. Failures
// are isolated per URL; one bad link never sinks the batch.
type Service struct {
	store         session.Store
	fetcher       fetch.Fetcher
	chunker       *chunk.Chunker
	embedder      *embed.Embedder
	maxConcurrent int
	logger        *log.Logger
}

func NewService(cfg config.IngestConfig, store session.Store, fetcher fetch.Fetcher, chunker *chunk.Chunker, embedder *embed.Embedder) *Service {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Service{
		store:         store,
		fetcher:       fetcher,
		chunker:       chunker,
		embedder:      embedder,
		maxConcurrent: maxConcurrent,
		logger:        log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// Submit starts a new ingestion batch on the session, replacing
// whatever the session held before. URLs are canonicalized and
// deduplicated first; malformed entries become immediate per-URL
// failures in the batch outcome. A batch with no entries at all is
// rejected and the session keeps its previous content. The returned
// channel closes when the batch resolves.
func (s *Service) Submit(ctx context.Context, sess *session.Session, urls []string) (<-chan struct{}, error) {
	valid, invalid, err := partitionURLs(urls)
	if err != nil {
		return nil, err
	}

	// The batch outlives the submitting request; cancellation comes
	// from a replacing batch, not from the caller's context.
	batchCtx, cancel := context.WithCancel(context.Background())
	all := make([]string, 0, len(valid)+len(invalid))
	all = append(all, valid...)
	for _, o := range invalid {
		all = append(all, o.URL)
	}
	batch, err := sess.BeginIngest(all, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	for _, o := range invalid {
		sess.RecordDocument(batch, models.Document{URL: o.URL, Status: models.DocumentFailed})
	}

	done := make(chan struct{})
	go s.run(batchCtx, sess, batch, valid, invalid, done)
	return done, nil
}

func (s *Service) run(ctx context.Context, sess *session.Session, batch uint64, urls []string, invalid []models.URLOutcome, done chan<- struct{}) {
	defer close(done)

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make([]models.URLOutcome, 0, len(urls)+len(invalid))
	outcomes = append(outcomes, invalid...)

	for _, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(link string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := s.ingestOne(ctx, sess, batch, link)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].URL < outcomes[j].URL })
	if !sess.CompleteIngest(batch, outcomes) {
		// Replaced by a newer batch; that batch owns the session now.
		s.logger.Printf("batch for session %s superseded", sess.ID())
		return
	}
	if err := s.store.Save(ctx, sess); err != nil {
		s.logger.Printf("save session %s: %v", sess.ID(), err)
	}
	s.logger.Printf("session %s resolved to %s (%d urls)", sess.ID(), sess.State(), len(outcomes))
}

// ingestOne runs the full pipeline for a single URL and reports its
// outcome. Errors are captured, never propagated.
func (s *Service) ingestOne(ctx context.Context, sess *session.Session, batch uint64, link string) models.URLOutcome {
	doc, err := s.fetcher.Fetch(ctx, link)
	if err != nil {
		s.logger.Printf("fetch %s: %v", link, err)
		sess.RecordDocument(batch, models.Document{URL: link, Status: models.DocumentFailed})
		return models.URLOutcome{URL: link, OK: false, Reason: failureReason(err)}
	}

	chunks := s.chunker.Chunk(doc)
	if len(chunks) == 0 {
		s.logger.Printf("no extractable content at %s", link)
		sess.RecordDocument(batch, models.Document{URL: link, Status: models.DocumentFailed})
		return models.URLOutcome{URL: link, OK: false, Reason: "no extractable content"}
	}

	// Embedding failure is fatal to the chunk, not the document.
	kept, dropped, err := s.embedder.EmbedChunksPartial(ctx, chunks)
	if err != nil {
		s.logger.Printf("embed %s: %v", link, err)
		sess.RecordDocument(batch, models.Document{URL: link, Status: models.DocumentFailed})
		return models.URLOutcome{URL: link, OK: false, Reason: failureReason(err)}
	}
	if len(kept) == 0 {
		s.logger.Printf("embed %s: all %d chunks failed", link, dropped)
		sess.RecordDocument(batch, models.Document{URL: link, Status: models.DocumentFailed})
		return models.URLOutcome{URL: link, OK: false, Reason: "embedding failed"}
	}

	if err := sess.AddChunks(batch, kept); err != nil {
		s.logger.Printf("index %s: %v", link, err)
		sess.RecordDocument(batch, models.Document{URL: link, Status: models.DocumentFailed})
		return models.URLOutcome{URL: link, OK: false, Reason: "indexing failed"}
	}

	sess.RecordDocument(batch, doc)
	outcome := models.URLOutcome{URL: link, OK: true, Chunks: len(kept)}
	if dropped > 0 {
		s.logger.Printf("embed %s: dropped %d of %d chunks", link, dropped, len(chunks))
		outcome.Reason = fmt.Sprintf("%d of %d chunks dropped: embedding failed", dropped, len(chunks))
	}
	return outcome
}

// partitionURLs canonicalizes and deduplicates the batch, preserving
// first occurrence order. Entries that are not http(s) URLs come back
// as ready-made failed outcomes. Blank entries are not URLs and are
// skipped; a batch with nothing but blanks is invalid input.
func partitionURLs(urls []string) ([]string, []models.URLOutcome, error) {
	seen := make(map[string]struct{}, len(urls))
	var valid []string
	var invalid []models.URLOutcome
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		c, err := helpers.CanonicalURL(u)
		if err != nil {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			invalid = append(invalid, models.URLOutcome{URL: u, OK: false, Reason: string(fetch.KindUnsupported)})
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		valid = append(valid, c)
	}
	if len(valid) == 0 && len(invalid) == 0 {
		return nil, nil, fmt.Errorf("%w: no urls in batch", session.ErrInvalidInput)
	}
	return valid, invalid, nil
}

func failureReason(err error) string {
	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	var ee *embed.EmbeddingError
	if errors.As(err, &ee) {
		return "embedding failed"
	}
	return err.Error()
}
