package provider

import (
	"context"
	"errors"

	"newsight/config"
	local_provider "newsight/provider/local"
	openai_provider "newsight/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Local  Client = "local"
)

// Provider is the interface that all LLM implementations must satisfy.
type Provider interface {
	// CreateEmbedding returns one vector per input text, in input order.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	// Complete returns a full completion for the system/user prompt pair.
	Complete(ctx context.Context, system, user string) (string, error)
	// StreamCompletion delivers the completion incrementally through
	// onDelta. A non-nil error from onDelta aborts the stream and is
	// returned as-is.
	StreamCompletion(ctx context.Context, system, user string, onDelta func(delta string) error) error
}

// NewProvider creates a new LLM client based on the provided configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.New(cfg), nil
	case Local:
		return local_provider.New(cfg.Dimensions), nil
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Provider)
	}
}
