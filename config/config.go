package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ingestion and QA engine.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Chunk     ChunkConfig     `mapstructure:"chunk"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// FetchConfig controls URL retrieval behaviour.
type FetchConfig struct {
	Renderer  string        `mapstructure:"renderer"` // http or chromedp
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	Backoff   time.Duration `mapstructure:"backoff"`
	MaxChars  int           `mapstructure:"max_chars"`
	UserAgent string        `mapstructure:"user_agent"`
}

func (f FetchConfig) Validate() error {
	switch f.Renderer {
	case "", "http", "chromedp":
	default:
		return fmt.Errorf("fetch.renderer must be http or chromedp, got %q", f.Renderer)
	}
	if f.Retries < 0 {
		return errors.New("fetch.retries cannot be negative")
	}
	return nil
}

// ChunkConfig controls passage splitting.
type ChunkConfig struct {
	Size    int `mapstructure:"size"`    // character budget per chunk
	Overlap int `mapstructure:"overlap"` // characters carried between consecutive chunks
}

func (c ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return errors.New("chunk.size must be > 0")
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk.overlap must be in [0, %d)", c.Size)
	}
	return nil
}

// LLMConfig contains embedding and completion provider settings.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // openai or local
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Dimensions      int           `mapstructure:"dimensions"` // local embedder vector size
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "", "openai", "local":
	default:
		return fmt.Errorf("llm.provider must be openai or local, got %q", l.Provider)
	}
	if l.Provider == "openai" && strings.TrimSpace(l.APIKey) == "" {
		return errors.New("llm.api_key required for openai provider (NEWSIGHT_LLM_API_KEY)")
	}
	return nil
}

// RetrievalConfig controls passage search.
type RetrievalConfig struct {
	TopK   int  `mapstructure:"top_k"`
	Hybrid bool `mapstructure:"hybrid"` // fuse BM25 with vector search
}

// IngestConfig controls the ingestion worker pool.
type IngestConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// StorageConfig contains session store settings.
type StorageConfig struct {
	SessionStore string        `mapstructure:"session_store"` // inmemory or redis
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (s StorageConfig) Validate() error {
	switch s.SessionStore {
	case "", "inmemory":
		return nil
	case "redis":
		if strings.TrimSpace(s.Redis.Host) == "" {
			return errors.New("storage.redis.host required when session_store is redis")
		}
		if strings.TrimSpace(s.Redis.Port) == "" {
			return errors.New("storage.redis.port required when session_store is redis")
		}
		return nil
	default:
		return fmt.Errorf("storage.session_store must be inmemory or redis, got %q", s.SessionStore)
	}
}

// LoadConfig loads configuration from an optional file plus NEWSIGHT_*
// environment variables. A missing config file is not an error; defaults
// and environment cover the full surface.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("fetch.renderer", "http")
	viper.SetDefault("fetch.timeout", 10*time.Second)
	viper.SetDefault("fetch.retries", 2)
	viper.SetDefault("fetch.backoff", 300*time.Millisecond)
	viper.SetDefault("fetch.max_chars", 200000)
	// Empty defaults register keys so AutomaticEnv can fill them.
	viper.SetDefault("fetch.user_agent", "")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("storage.redis.host", "")
	viper.SetDefault("storage.redis.port", "")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("chunk.size", 1000)
	viper.SetDefault("chunk.overlap", 200)
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.completion_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.dimensions", 256)
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.hybrid", true)
	viper.SetDefault("ingest.max_concurrent", 5)
	viper.SetDefault("storage.session_store", "inmemory")
	viper.SetDefault("storage.session_ttl", 48*time.Hour)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("NEWSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Fetch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Chunk.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
