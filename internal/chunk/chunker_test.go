package chunk

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"newsight/internal/models"
)

func doc(text string) models.Document {
	return models.Document{URL: "https://example.com/a", Title: "A", Text: text, Status: models.DocumentFetched}
}

func TestChunkEmptyText(t *testing.T) {
	t.Parallel()
	if got := New(100, 20).Chunk(doc("")); got != nil {
		t.Fatalf("empty text should yield no chunks, got %d", len(got))
	}
	if got := New(100, 20).Chunk(doc("   \n\t ")); got != nil {
		t.Fatalf("whitespace text should yield no chunks, got %d", len(got))
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	t.Parallel()
	chunks := New(1000, 200).Chunk(doc("One short sentence. And another."))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Seq != 0 {
		t.Errorf("seq = %d, want 0", chunks[0].Seq)
	}
	if chunks[0].DocumentURL != "https://example.com/a" {
		t.Errorf("document url not carried: %q", chunks[0].DocumentURL)
	}
}

func TestChunkDeterministic(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	c := New(200, 40)
	a := c.Chunk(doc(text))
	b := c.Chunk(doc(text))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same input produced different chunk boundaries")
	}
	if len(a) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(a))
	}
}

func TestChunkSeqAscendingNoGaps(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("Sentence number one here. Sentence number two here. ", 30)
	chunks := New(150, 30).Chunk(doc(text))
	for i, c := range chunks {
		if c.Seq != i {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
	}
}

func TestChunkPreservesContentOrder(t *testing.T) {
	t.Parallel()
	var sentences []string
	for _, w := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"} {
		sentences = append(sentences, "Report section "+w+" covers the "+w+" results in detail.")
	}
	text := strings.Join(sentences, " ")
	chunks := New(120, 30).Chunk(doc(text))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Each sentence must appear, and first occurrences must be in order
	// across the concatenated chunks (overlap duplicates are fine).
	joined := ""
	for _, c := range chunks {
		joined += c.Text + "\n"
	}
	last := -1
	for _, s := range sentences {
		idx := strings.Index(joined, s)
		if idx < 0 {
			t.Fatalf("sentence %q missing from chunks", s)
		}
		if idx < last {
			t.Fatalf("sentence %q out of order", s)
		}
		last = idx
	}
}

func TestChunkOverlapCarriesContext(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("Some filler sentence to occupy budget space here. ", 10)
	chunks := New(150, 40).Chunk(doc(text))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		head := chunks[i].Text
		if len(head) > 40 {
			head = head[:40]
		}
		// The start of every later chunk repeats the tail of some earlier text.
		if !strings.Contains(text, strings.TrimSpace(head)) {
			t.Fatalf("chunk %d head %q not found in source", i, head)
		}
	}
}

func TestChunkOversizedSentenceHardSplit(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 450) + "."
	chunks := New(100, 20).Chunk(doc(long))
	if len(chunks) < 4 {
		t.Fatalf("expected hard-split into several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > 100 {
			t.Errorf("chunk %d exceeds budget: %d chars", i, len(c.Text))
		}
	}
}

func TestChunkMultiByteTextKeepsRunesIntact(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
	}{
		// One oversized run of two-byte runes forces hard splits at
		// offsets that land mid-rune on a plain byte boundary.
		{"hard split", strings.Repeat("é", 300) + "."},
		// Packed multi-byte sentences exercise the overlap tail.
		{"overlap tail", strings.Repeat("Le résumé détaillé présente les résultats année après année. ", 10)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			chunks := New(100, 20).Chunk(doc(tc.text))
			if len(chunks) < 2 {
				t.Fatalf("expected multiple chunks, got %d", len(chunks))
			}
			for i, c := range chunks {
				if !utf8.ValidString(c.Text) {
					t.Errorf("chunk %d severs a rune: %q", i, c.Text)
				}
			}
		})
	}
}
