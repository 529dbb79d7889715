package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"newsight/config"
	"newsight/internal/embed"
	"newsight/internal/helpers"
	"newsight/internal/index"
	"newsight/internal/models"
	"newsight/internal/session"
	"newsight/provider"
)

// RefusalPhrase is the exact sentence the model must emit when the
// retrieved passages do not contain the answer.
const RefusalPhrase = "I don't have enough information to answer this question."

const DefaultTopK = 5

const systemPrompt = `You are a careful assistant that answers questions using ONLY the numbered source passages provided.

RULES:
1. Use only information from the passages. Never use outside knowledge.
2. Cite every claim with the marker of the passage that supports it, e.g. [S1] or [S2].
3. If the passages do not contain the answer, reply with exactly: ` + RefusalPhrase + `
4. Be concise and direct.`

// Answerer turns questions into streamed, source-attributed answers
// over a session's index.
type Answerer struct {
	provider provider.Provider
	embedder *embed.Embedder
	topK     int
	hybrid   bool
	logger   *log.Logger
}

func New(cfg config.RetrievalConfig, p provider.Provider, e *embed.Embedder) *Answerer {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Answerer{
		provider: p,
		embedder: e,
		topK:     topK,
		hybrid:   cfg.Hybrid,
		logger:   log.New(log.Writer(), "[ANSWER] ", log.LstdFlags),
	}
}

// Ask retrieves the most relevant passages for the question and starts
// streaming a grounded answer. Retrieval errors surface immediately;
// generation errors surface on the stream after the fragment channel
// closes.
func (a *Answerer) Ask(ctx context.Context, sess *session.Session, question string) (*Stream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", session.ErrInvalidInput)
	}
	if err := sess.EnsureAskable(); err != nil {
		return nil, err
	}

	qvec, err := a.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	idx := sess.Index()
	var hits []index.Hit
	if a.hybrid {
		hits = idx.HybridSearch(question, qvec, a.topK)
	} else {
		hits = idx.VectorSearch(qvec, a.topK)
	}
	if len(hits) == 0 {
		return nil, ErrNoRelevantContent
	}

	stream := newStream(hits)
	go a.generate(ctx, stream, question, hits)
	return stream, nil
}

func (a *Answerer) generate(ctx context.Context, stream *Stream, question string, hits []index.Hit) {
	user := buildUserPrompt(question, hits)

	var full strings.Builder
	err := a.provider.StreamCompletion(ctx, systemPrompt, user, func(delta string) error {
		full.WriteString(delta)
		select {
		case stream.fragments <- delta:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-stream.closed:
			return errStreamClosed
		}
	})

	answer := full.String()
	sources, ungrounded := attributeSources(answer, hits)

	switch {
	case err == nil:
	case errors.Is(err, errStreamClosed):
		// Consumer walked away; not a failure.
		err = nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		a.logger.Printf("generation aborted: %v", err)
	default:
		a.logger.Printf("generation failed: %v", err)
		err = &GenerationError{Err: err}
	}
	stream.finish(answer, sources, ungrounded, err)
}

// buildUserPrompt labels each retrieved passage [S1]..[Sn] in rank
// order and appends the question.
func buildUserPrompt(question string, hits []index.Hit) string {
	var b strings.Builder
	b.WriteString("SOURCE PASSAGES:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[S%d] %s\n", i+1, strings.TrimSpace(h.Chunk.Text))
	}
	b.WriteString("\nQUESTION: ")
	b.WriteString(question)
	return b.String()
}

// attributeSources maps the citation markers in the answer back to the
// documents behind the cited passages, deduplicated by URL in
// first-citation order. An answer without a single valid marker that
// is not the refusal is flagged ungrounded.
func attributeSources(answer string, hits []index.Hit) ([]models.Source, bool) {
	labels := helpers.CitedLabels(answer)
	seen := make(map[string]struct{})
	var sources []models.Source
	for _, n := range labels {
		if n > len(hits) {
			continue
		}
		c := hits[n-1].Chunk
		if _, dup := seen[c.DocumentURL]; dup {
			continue
		}
		seen[c.DocumentURL] = struct{}{}
		sources = append(sources, models.Source{URL: c.DocumentURL, Title: c.Title})
	}
	refused := strings.Contains(answer, RefusalPhrase)
	ungrounded := len(sources) == 0 && !refused && strings.TrimSpace(answer) != ""
	return sources, ungrounded
}
