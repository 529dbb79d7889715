package models

import "time"

// DocumentStatus tracks a document through its fetch lifecycle.
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentFetched DocumentStatus = "fetched"
	DocumentFailed  DocumentStatus = "failed"
)

// Document is the normalized form of one fetched URL. Immutable once
// status reaches DocumentFetched.
type Document struct {
	URL       string         `json:"url"`
	Title     string         `json:"title,omitempty"`
	Text      string         `json:"text,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
	Status    DocumentStatus `json:"status"`
}

// Chunk is a bounded passage of a document's text, independently
// embeddable and retrievable. Seq is ascending within a document with
// no gaps. Never mutated after creation.
type Chunk struct {
	DocumentURL string    `json:"document_url"`
	Title       string    `json:"title,omitempty"`
	Seq         int       `json:"seq"`
	Text        string    `json:"text"`
	Vector      []float32 `json:"vector,omitempty"`
}

// Source identifies a document that grounded part of an answer.
// Deduplicated by URL.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// SessionState is the authoritative status of one ingestion batch.
type SessionState string

const (
	SessionEmpty          SessionState = "empty"
	SessionIngesting      SessionState = "ingesting"
	SessionReady          SessionState = "ready"
	SessionPartiallyReady SessionState = "partially_ready"
	SessionFailed         SessionState = "failed"
)

// URLOutcome records the per-URL result of an ingestion batch.
type URLOutcome struct {
	URL    string `json:"url"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Chunks int    `json:"chunks"`
}
