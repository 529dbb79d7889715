package embed

import (
	"context"
	"fmt"
	"sync"

	"newsight/internal/models"
	"newsight/provider"
)

// batchSize caps how many texts go to the provider in one request.
const batchSize = 64

// EmbeddingError wraps provider failures during vectorization.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding failed: %v", e.Err) }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// Embedder turns chunk text and questions into vectors through the
// configured provider. All vectors from one Embedder share a dimension;
// a provider returning mixed dimensions is an error. Safe for
// concurrent use.
type Embedder struct {
	provider provider.Provider

	mu        sync.Mutex
	dimension int // learned from the first vector
}

func New(p provider.Provider) *Embedder {
	return &Embedder{provider: p}
}

// EmbedChunks populates Vector on every chunk, in place, preserving
// order. A failure leaves the chunks untouched.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := e.embedTexts(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vecs {
			chunks[start+i].Vector = v
		}
	}
	return nil
}

// EmbedChunksPartial vectorizes as many chunks as the provider will
// accept. A failed batch is retried chunk by chunk so one bad input
// does not discard its batch mates; chunks that still fail are
// dropped. Returns the embedded chunks and the number dropped. The
// only error is context cancellation.
func (e *Embedder) EmbedChunksPartial(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, int, error) {
	if len(chunks) == 0 {
		return nil, 0, nil
	}
	kept := make([]models.Chunk, 0, len(chunks))
	dropped := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, 0, len(batch))
		for _, c := range batch {
			texts = append(texts, c.Text)
		}
		vecs, err := e.embedTexts(ctx, texts)
		if err == nil {
			for i, c := range batch {
				c.Vector = vecs[i]
				kept = append(kept, c)
			}
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, 0, &EmbeddingError{Err: cerr}
		}
		for _, c := range batch {
			vec, err := e.embedTexts(ctx, []string{c.Text})
			if err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return nil, 0, &EmbeddingError{Err: cerr}
				}
				dropped++
				continue
			}
			c.Vector = vec[0]
			kept = append(kept, c)
		}
	}
	return kept, dropped, nil
}

// EmbedQuery vectorizes a single question.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.provider.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &EmbeddingError{Err: fmt.Errorf("expected %d vectors, got %d", len(texts), len(vecs))}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, &EmbeddingError{Err: fmt.Errorf("provider returned empty vector")}
		}
		if e.dimension == 0 {
			e.dimension = len(v)
		}
		if len(v) != e.dimension {
			return nil, &EmbeddingError{Err: fmt.Errorf("vector dimension %d, expected %d", len(v), e.dimension)}
		}
	}
	return vecs, nil
}
