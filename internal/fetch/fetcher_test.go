package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"newsight/config"
	"newsight/internal/models"
)

func testFetcher(retries int) *HTTPFetcher {
	return NewHTTPFetcher(config.FetchConfig{
		Timeout: 2 * time.Second,
		Retries: retries,
		Backoff: time.Millisecond,
	})
}

func TestFetchHTML(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Quarterly Report</title></head><body>
			<script>var x = "should not appear";</script>
			<article><p>Revenue grew twelve percent year over year.</p>
			<p>Margins held steady despite input costs.</p></article></body></html>`))
	}))
	defer srv.Close()

	doc, err := testFetcher(0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.Status != models.DocumentFetched {
		t.Errorf("status = %s, want fetched", doc.Status)
	}
	if doc.Title != "Quarterly Report" {
		t.Errorf("title = %q, want %q", doc.Title, "Quarterly Report")
	}
	if !strings.Contains(doc.Text, "Revenue grew twelve percent") {
		t.Errorf("text missing article content: %q", doc.Text)
	}
	if strings.Contains(doc.Text, "should not appear") {
		t.Errorf("script content leaked into text: %q", doc.Text)
	}
}

func TestFetchPlainText(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain body"))
	}))
	defer srv.Close()

	doc, err := testFetcher(0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.Text != "plain body" {
		t.Errorf("text = %q, want %q", doc.Text, "plain body")
	}
}

func TestFetchNotFoundNoRetry(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher(2).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindNotFound {
		t.Fatalf("expected FetchError{NotFound}, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("4xx should not be retried, server hit %d times", n)
	}
}

func TestFetchServerErrorRetries(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testFetcher(2).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindNetwork {
		t.Fatalf("expected FetchError{NetworkFailure}, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", n)
	}
}

func TestFetchServerErrorThenRecover(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	doc, err := testFetcher(2).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed after recovery: %v", err)
	}
	if doc.Text != "recovered" {
		t.Errorf("text = %q, want %q", doc.Text, "recovered")
	}
}

func TestFetchUnsupportedContentType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := testFetcher(0).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindUnsupported {
		t.Fatalf("expected FetchError{Unsupported}, got %v", err)
	}
}

func TestFetchMalformedURL(t *testing.T) {
	t.Parallel()
	_, err := testFetcher(0).Fetch(context.Background(), "::not a url::")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindUnsupported {
		t.Fatalf("expected FetchError{Unsupported}, got %v", err)
	}
}

func TestFetchTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("é", 100)))
	}))
	defer srv.Close()

	// An odd byte cap lands mid-rune in two-byte text.
	f := NewHTTPFetcher(config.FetchConfig{Timeout: 2 * time.Second, MaxChars: 101})
	doc, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(doc.Text) > 101 {
		t.Errorf("text is %d bytes, cap is 101", len(doc.Text))
	}
	if !utf8.ValidString(doc.Text) {
		t.Errorf("truncation severed a rune: %q", doc.Text[len(doc.Text)-4:])
	}
}

func TestFetchCancelDuringBackoffIsNotTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(config.FetchConfig{Timeout: 5 * time.Second, Retries: 3, Backoff: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := f.Fetch(ctx, srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind == KindTimeout {
		t.Errorf("explicit cancel reported as timeout: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()
	_, err := testFetcher(0).Fetch(context.Background(), "http://127.0.0.1:1/never")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != KindNetwork && fe.Kind != KindTimeout {
		t.Errorf("kind = %s, want network_failure or timeout", fe.Kind)
	}
}
