// Package local_provider implements a deterministic offline provider.
// Embeddings are bag-of-words token hashes, so texts sharing vocabulary
// land near each other under cosine similarity. Completions are
// extractive: the first context passage is echoed with its marker. It
// exists for development and tests; it calls no external service.
package local_provider

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultDimensions = 256

var markerRe = regexp.MustCompile(`\[S(\d+)\]\s*([^\n]+)`)

type client struct {
	dimensions int
}

func New(dimensions int) *client {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &client{dimensions: dimensions}
}

func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs[i] = c.embed(text)
	}
	return vecs, nil
}

func (c *client) embed(text string) []float32 {
	vec := make([]float32, c.dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(c.dimensions)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func (c *client) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m := markerRe.FindStringSubmatch(user); m != nil {
		passage := strings.TrimSpace(m[2])
		if len(passage) > 200 {
			passage = passage[:200]
		}
		return passage + " [S" + m[1] + "]", nil
	}
	return "I don't have enough information to answer this question.", nil
}

func (c *client) StreamCompletion(ctx context.Context, system, user string, onDelta func(delta string) error) error {
	full, err := c.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	words := strings.SplitAfter(full, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onDelta(w); err != nil {
			return err
		}
	}
	return nil
}
