package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newsight/config"
	"newsight/internal/answer"
	"newsight/internal/chunk"
	"newsight/internal/embed"
	"newsight/internal/fetch"
	"newsight/internal/ingest"
	"newsight/internal/session"
	"newsight/internal/session/inmemory"
	redis_session "newsight/internal/session/redis"
	"newsight/provider"
)

// Run wires the full engine together and serves the HTTP API.
func Run(cfg *config.Config) error {
	p, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	fetcher, err := fetch.NewFetcher(cfg.Fetch)
	if err != nil {
		return err
	}
	if closer, ok := fetcher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	store, err := newSessionStore(cfg.Storage)
	if err != nil {
		return err
	}
	embedder := embed.New(p)
	ingestSvc := ingest.NewService(cfg.Ingest, store, fetcher, chunk.New(cfg.Chunk.Size, cfg.Chunk.Overlap), embedder)
	answerer := answer.New(cfg.Retrieval, p, embedder)

	e := NewRouter(&Handler{
		Store:    store,
		Ingest:   ingestSvc,
		Answerer: answerer,
		Logger:   log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	})

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10010"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func newSessionStore(cfg config.StorageConfig) (session.Store, error) {
	switch cfg.SessionStore {
	case "", "inmemory":
		return inmemory.NewStore(cfg.SessionTTL), nil
	case "redis":
		return redis_session.NewStore(cfg.Redis, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.SessionStore)
	}
}

// NewRouter builds the echo app with middleware and routes.
func NewRouter(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h.Register(e.Group("/api"))
	return e
}
