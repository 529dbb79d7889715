package index

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve"

	"newsight/internal/models"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// Hit is one retrieval result.
type Hit struct {
	ID    int
	Chunk models.Chunk
	Score float64
	Rank  int
}

// Index holds a session's chunks for retrieval: vectors in memory for
// cosine search, plus a mem-only bleve index for BM25. Chunk ids are
// assigned sequentially at Add time and never reused.
type Index struct {
	mu     sync.RWMutex
	chunks []models.Chunk
	bleve  bleve.Index
}

// bleveDoc is the shape indexed for keyword search.
type bleveDoc struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func New() (*Index, error) {
	b, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{bleve: b}, nil
}

// Add appends chunks, assigning each the next sequential id, and
// returns the ids. Chunks are visible to searches as soon as Add
// returns.
func (x *Index) Add(chunks []models.Chunk) ([]int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]int, 0, len(chunks))
	for _, c := range chunks {
		id := len(x.chunks)
		if err := x.bleve.Index(strconv.Itoa(id), bleveDoc{Title: c.Title, Text: c.Text}); err != nil {
			return nil, err
		}
		x.chunks = append(x.chunks, c)
		ids = append(ids, id)
	}
	return ids, nil
}

// Len reports how many chunks are indexed.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Chunk returns the chunk stored under id.
func (x *Index) Chunk(id int) (models.Chunk, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if id < 0 || id >= len(x.chunks) {
		return models.Chunk{}, false
	}
	return x.chunks[id], true
}

// Chunks returns all indexed chunks in id order.
func (x *Index) Chunks() []models.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]models.Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// VectorSearch returns up to k chunks ranked by cosine similarity to q,
// scores non-increasing, ties broken by ascending id.
func (x *Index) VectorSearch(q []float32, k int) []Hit {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.chunks) == 0 {
		return nil
	}
	hits := make([]Hit, 0, len(x.chunks))
	for id, c := range x.chunks {
		hits = append(hits, Hit{ID: id, Chunk: c, Score: cosine(q, c.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}

// BM25Search returns up to k chunks ranked by keyword relevance.
func (x *Index) BM25Search(q string, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := x.bleve.Search(searchReq)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for i, hit := range res.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil || id < 0 || id >= len(x.chunks) {
			continue
		}
		out = append(out, Hit{ID: id, Chunk: x.chunks[id], Score: hit.Score, Rank: i + 1})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// HybridSearch fuses vector and keyword rankings with reciprocal rank
// fusion. A keyword-search failure degrades to vector-only results.
func (x *Index) HybridSearch(q string, qvec []float32, k int) []Hit {
	vec := x.VectorSearch(qvec, k)
	kw, err := x.BM25Search(q, k)
	if err != nil || len(kw) == 0 {
		return vec
	}
	return fuseRRF(vec, kw, k)
}

func fuseRRF(a, b []Hit, k int) []Hit {
	type agg struct {
		item  Hit
		score float64
	}
	m := map[int]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := m[h.ID]
			if !ok {
				x = &agg{item: h}
				m[h.ID] = x
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)
	fused := make([]Hit, 0, len(m))
	for _, v := range m {
		h := v.item
		h.Score = v.score
		fused = append(fused, h)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	if len(fused) > k {
		fused = fused[:k]
	}
	for i := range fused {
		fused[i].Rank = i + 1
	}
	return fused
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
