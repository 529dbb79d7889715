package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"newsight/internal/answer"
	"newsight/internal/ingest"
	"newsight/internal/session"
)

// Handler serves the session lifecycle: create, inspect, re-ingest and
// ask.
type Handler struct {
	Store    session.Store
	Ingest   *ingest.Service
	Answerer *answer.Answerer
	Logger   *log.Logger
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/sessions", h.createSession)
	g.GET("/sessions/:id", h.getSession)
	g.POST("/sessions/:id/documents", h.ingestDocuments)
	g.POST("/sessions/:id/ask", h.ask)
}

type createSessionRequest struct {
	URLs []string `json:"urls"`
}

type askRequest struct {
	Question string `json:"question"`
}

// createSession makes a session and, when urls are given, starts its
// first ingestion batch. Ingestion runs in the background; poll the
// session for readiness.
func (h *Handler) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, err := h.Store.Create(c.Request().Context())
	if err != nil {
		return err
	}
	if len(req.URLs) > 0 {
		if _, err := h.Ingest.Submit(c.Request().Context(), sess, req.URLs); err != nil {
			return mapError(err)
		}
	}
	return c.JSON(http.StatusAccepted, sess.Snapshot())
}

func (h *Handler) getSession(c echo.Context) error {
	sess, err := h.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

// ingestDocuments replaces the session's content with a new batch.
func (h *Handler) ingestDocuments(c echo.Context) error {
	sess, err := h.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := h.Ingest.Submit(c.Request().Context(), sess, req.URLs); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, sess.Snapshot())
}

// ask answers a question over the session's content, streaming the
// answer as server-sent events: fragment events carry text deltas,
// a sources event carries attribution, done closes the exchange.
func (h *Handler) ask(c echo.Context) error {
	sess, err := h.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	stream, err := h.Answerer.Ask(ctx, sess, req.Question)
	if err != nil {
		return mapError(err)
	}
	defer stream.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	send := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case fragment, open := <-stream.Fragments():
			if !open {
				return h.finishAsk(send, stream)
			}
			if err := send("fragment", map[string]string{"text": fragment}); err != nil {
				h.Logger.Printf("ask stream write failed: %v", err)
				return nil
			}
		}
	}
}

func (h *Handler) finishAsk(send func(string, interface{}) error, stream *answer.Stream) error {
	if err := stream.Err(); err != nil {
		h.Logger.Printf("generation failed: %v", err)
		_ = send("error", map[string]string{"message": "answer generation failed"})
		return nil
	}
	if err := send("sources", map[string]interface{}{
		"sources":    stream.Sources(),
		"ungrounded": stream.Ungrounded(),
	}); err != nil {
		return nil
	}
	_ = send("done", map[string]string{})
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotReady):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, answer.ErrNoRelevantContent):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
