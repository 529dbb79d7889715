package answer

import (
	"errors"
	"fmt"
)

// ErrNoRelevantContent reports that retrieval found nothing usable for
// the question.
var ErrNoRelevantContent = errors.New("no relevant content for question")

// GenerationError wraps provider failures during answer generation.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation failed: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }
