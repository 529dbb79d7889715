package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"newsight/config"
	"newsight/internal/models"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultRetries  = 2
	DefaultBackoff  = 300 * time.Millisecond
	DefaultMaxChars = 200000
)

// Fetcher retrieves raw content for a URL and normalizes it to plain text.
type Fetcher interface {
	Fetch(ctx context.Context, link string) (models.Document, error)
}

// NewFetcher builds the configured fetcher implementation.
func NewFetcher(cfg config.FetchConfig) (Fetcher, error) {
	switch cfg.Renderer {
	case "", "http":
		return NewHTTPFetcher(cfg), nil
	case "chromedp":
		return NewChromedpFetcher(cfg)
	default:
		return nil, fmt.Errorf("unsupported fetch renderer: %s", cfg.Renderer)
	}
}

// HTTPFetcher retrieves pages with plain HTTP GETs and extracts readable
// text from HTML via readability. Transient failures (network errors,
// timeouts, 429, 5xx) are retried with exponential backoff; everything
// else fails immediately.
type HTTPFetcher struct {
	client    *http.Client
	retries   int
	backoff   time.Duration
	maxChars  int
	userAgent string
}

func NewHTTPFetcher(cfg config.FetchConfig) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = DefaultRetries
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		retries:   retries,
		backoff:   backoff,
		maxChars:  maxChars,
		userAgent: cfg.UserAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, link string) (models.Document, error) {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return models.Document{}, &FetchError{Kind: KindUnsupported, URL: link, Err: errors.New("malformed url")}
	}

	var lastErr error
	tries := f.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return models.Document{}, &FetchError{Kind: KindUnsupported, URL: link, Err: err}
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			doc, ferr := f.consume(resp, link, parsed)
			if ferr == nil {
				return doc, nil
			}
			if !retryable(ferr) {
				return models.Document{}, ferr
			}
			lastErr = ferr
		}

		if attempt < tries-1 {
			select {
			case <-time.After(f.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				// Deadline expiry is a timeout; an explicit cancel is not.
				return models.Document{}, classify(link, ctx.Err())
			}
		}
	}
	return models.Document{}, classify(link, lastErr)
}

// consume turns a completed HTTP response into a Document or a FetchError.
func (f *HTTPFetcher) consume(resp *http.Response, link string, parsed *url.URL) (models.Document, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return models.Document{}, &FetchError{Kind: KindNetwork, URL: link, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return models.Document{}, &FetchError{Kind: KindNotFound, URL: link, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return models.Document{}, &FetchError{Kind: KindNetwork, URL: link, Err: err}
	}

	var title, text string
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml" || mediaType == "":
		article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
		if err != nil {
			return models.Document{}, &FetchError{Kind: KindUnsupported, URL: link, Err: err}
		}
		title = strings.TrimSpace(article.Title)
		text = strings.TrimSpace(article.TextContent)
	case strings.HasPrefix(mediaType, "text/"):
		text = strings.TrimSpace(string(body))
	default:
		return models.Document{}, &FetchError{Kind: KindUnsupported, URL: link, Err: fmt.Errorf("content type %s", mediaType)}
	}

	text = truncate(text, f.maxChars)
	return models.Document{
		URL:       link,
		Title:     title,
		Text:      text,
		FetchedAt: time.Now(),
		Status:    models.DocumentFetched,
	}, nil
}

// truncate caps s at n bytes without severing a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func retryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == KindNetwork || fe.Kind == KindTimeout
	}
	return false
}

// classify maps the final error after exhausted retries to a FetchError.
func classify(link string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &FetchError{Kind: KindTimeout, URL: link, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: link, Err: err}
}
