package answer

import (
	"errors"
	"sync"

	"newsight/internal/index"
	"newsight/internal/models"
)

var errStreamClosed = errors.New("stream closed by consumer")

// Stream delivers an answer incrementally. Consume Fragments until it
// closes, then read Answer, Sources, Ungrounded and Err for the final
// result. Close abandons generation early.
type Stream struct {
	fragments chan string
	closed    chan struct{}
	done      chan struct{}
	hits      []index.Hit

	closeOnce sync.Once

	// final state, written once before done closes
	answer     string
	sources    []models.Source
	ungrounded bool
	err        error
}

func newStream(hits []index.Hit) *Stream {
	return &Stream{
		fragments: make(chan string, 16),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		hits:      hits,
	}
}

// Fragments yields answer text in arrival order. The channel closes
// when generation finishes, fails or is abandoned.
func (s *Stream) Fragments() <-chan string { return s.fragments }

// Hits exposes the retrieved passages behind this answer, in rank
// order matching the [S1]..[Sn] markers.
func (s *Stream) Hits() []index.Hit { return s.hits }

// Close abandons generation. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Answer is the full generated text. Valid after Fragments closes.
func (s *Stream) Answer() string {
	<-s.done
	return s.answer
}

// Sources lists the documents cited by the answer, deduplicated by
// URL. Valid after Fragments closes.
func (s *Stream) Sources() []models.Source {
	<-s.done
	return s.sources
}

// Ungrounded reports an answer that cited no passage and was not a
// refusal. Valid after Fragments closes.
func (s *Stream) Ungrounded() bool {
	<-s.done
	return s.ungrounded
}

// Err reports how generation ended. Valid after Fragments closes.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

func (s *Stream) finish(answer string, sources []models.Source, ungrounded bool, err error) {
	s.answer = answer
	s.sources = sources
	s.ungrounded = ungrounded
	s.err = err
	close(s.done)
	close(s.fragments)
}
