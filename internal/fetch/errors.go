package fetch

import "fmt"

// ErrorKind classifies fetch failures for retry and reporting decisions.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindNotFound    ErrorKind = "not_found"
	KindUnsupported ErrorKind = "unsupported"
	KindNetwork     ErrorKind = "network_failure"
)

// FetchError is the typed failure for a single URL. Never fatal to the
// batch; the caller records it and continues with remaining URLs.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }
