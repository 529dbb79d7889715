package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"newsight/internal/models"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

var sentenceRe = regexp.MustCompile(`(?m)(?U)[^.!?]+[.!?]`)

// Chunker splits normalized document text into overlapping passages on
// sentence boundaries. Splitting is deterministic: the same text always
// yields the same chunk boundaries.
type Chunker struct {
	size    int // character budget per chunk
	overlap int // characters carried from the tail of the previous chunk
}

func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into ordered passages for the given document.
// Empty or whitespace-only text yields no chunks and no error. Seq is
// ascending from zero with no gaps.
func (c *Chunker) Chunk(doc models.Document) []models.Chunk {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	var parts []string
	var cur strings.Builder
	for _, sentence := range sentences {
		// Oversized sentences are hard-split at the budget.
		if len(sentence) > c.size {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, hardSplit(sentence, c.size, c.overlap)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > c.size {
			prev := cur.String()
			parts = append(parts, prev)
			cur.Reset()
			// Carry only as much overlap as leaves room for the sentence.
			carry := c.overlap
			if room := c.size - len(sentence) - 1; room < carry {
				carry = room
			}
			cur.WriteString(tail(prev, carry))
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, models.Chunk{
			DocumentURL: doc.URL,
			Title:       doc.Title,
			Seq:         i,
			Text:        part,
		})
	}
	return chunks
}

// splitSentences breaks text on sentence terminators, keeping any
// trailing fragment without a terminator.
func splitSentences(text string) []string {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	var out []string
	last := 0
	for _, loc := range locs {
		s := strings.TrimSpace(text[loc[0]:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// tail returns the last n bytes of s, aligned forward to a word or
// rune boundary so overlap never starts mid-word or mid-rune.
func tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		if n <= 0 {
			return ""
		}
		return s
	}
	start := runeAlign(s, len(s)-n)
	cut := s[start:]
	if idx := strings.IndexByte(cut, ' '); idx >= 0 && idx+1 < len(cut) {
		cut = cut[idx+1:]
	}
	return cut
}

func hardSplit(s string, size, overlap int) []string {
	var out []string
	for start := 0; start < len(s); {
		end := start + size
		if end >= len(s) {
			out = append(out, s[start:])
			break
		}
		if aligned := runeAlign(s, end); aligned > start {
			end = aligned
		}
		out = append(out, s[start:end])
		next := runeAlign(s, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// runeAlign backs i off to the start of the rune it points into.
func runeAlign(s string, i int) int {
	if i <= 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
