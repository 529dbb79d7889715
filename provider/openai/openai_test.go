package openai_provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsight/config"
)

func testClient(baseURL string) *client {
	return New(config.LLMConfig{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		CompletionModel: "gpt-4o-mini",
		EmbeddingModel:  "text-embedding-3-small",
		Timeout:         5 * time.Second,
	})
}

func TestCreateEmbeddingPreservesOrder(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		// Respond out of order; the client must reorder by index.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"embedding":[0,1],"index":1},
			{"embedding":[1,0],"index":0}
		]}`))
	}))
	defer srv.Close()

	vecs, err := testClient(srv.URL).CreateEmbedding(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("CreateEmbedding failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not reordered by index: %v", vecs)
	}
}

func TestCreateEmbeddingEmptyInput(t *testing.T) {
	t.Parallel()
	vecs, err := testClient("http://127.0.0.1:1").CreateEmbedding(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("empty input should be a no-op, got %v, %v", vecs, err)
	}
}

func TestCreateEmbeddingCountMismatch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateEmbedding(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error on embedding count mismatch")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}]}`))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "the answer" {
		t.Errorf("got %q, want %q", got, "the answer")
	}
}

func TestCompleteAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Complete(context.Background(), "", "user"); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestStreamCompletion(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{}}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer srv.Close()

	var got strings.Builder
	err := testClient(srv.URL).StreamCompletion(context.Background(), "", "hi", func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if got.String() != "hello" {
		t.Errorf("got %q, want %q", got.String(), "hello")
	}
}

func TestStreamCompletionOnDeltaAbort(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer srv.Close()

	abort := errors.New("stop now")
	var calls int
	err := testClient(srv.URL).StreamCompletion(context.Background(), "", "hi", func(delta string) error {
		calls++
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort error to surface, got %v", err)
	}
	if calls != 1 {
		t.Errorf("onDelta called %d times after abort, want 1", calls)
	}
}
