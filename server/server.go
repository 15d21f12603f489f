// Package server exposes the turn router over HTTP: a JSON turn endpoint
// with an optional SSE streaming mode, a health probe, session stats and
// Prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/orchestrator"
)

// Options configures the Server.
type Options struct {
	// MetricsEnabled mounts /metrics when true.
	MetricsEnabled bool
	Logger         logging.Logger
}

// Server wraps an echo instance around a Parley façade.
type Server struct {
	app    *parley.Parley
	echo   *echo.Echo
	logger logging.Logger
}

// TurnPayload is the request body of POST /v1/turns.
type TurnPayload struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id"`
	OwnerID        string   `json:"owner_id"`
	Participants   []string `json:"participants"`
	Mention        string   `json:"mention"`
	// Stream switches the response to server-sent events.
	Stream bool `json:"stream"`
}

// TurnReply is the response body of a buffered turn.
type TurnReply struct {
	Responder string `json:"responder"`
	Text      string `json:"text"`
}

// New builds the HTTP server around the given façade.
func New(app *parley.Parley, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{app: app, echo: e, logger: opts.Logger}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	v1 := e.Group("/v1")
	v1.POST("/turns", s.handleTurn)
	v1.GET("/stats", s.handleStats)
	v1.DELETE("/conversations/:id", s.handleRelease)

	return s
}

// Start blocks serving HTTP on the given address.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Echo exposes the underlying echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) handleTurn(c echo.Context) error {
	var payload TurnPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if payload.ConversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id is required")
	}

	req := orchestrator.TurnRequest{
		Message:        payload.Message,
		ConversationID: payload.ConversationID,
		OwnerID:        payload.OwnerID,
		Participants:   payload.Participants,
		Mention:        payload.Mention,
	}

	if payload.Stream {
		return s.streamTurn(c, req)
	}

	name, text := s.app.ProcessTurn(c.Request().Context(), req)
	return c.JSON(http.StatusOK, TurnReply{Responder: name, Text: text})
}

// streamTurn delivers token increments as SSE "token" events followed by
// one "final" event carrying the complete reply.
func (s *Server) streamTurn(c echo.Context, req orchestrator.TurnRequest) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	var sink core.StreamSink = func(text string) {
		data, err := json.Marshal(map[string]string{"text": text})
		if err != nil {
			return
		}
		if _, err := resp.Write([]byte("event: token\ndata: " + string(data) + "\n\n")); err != nil {
			s.logger.Warn("dropping stream write", "error", err)
			return
		}
		flusher.Flush()
	}
	req.Sink = sink

	name, text := s.app.ProcessTurn(c.Request().Context(), req)

	data, err := json.Marshal(TurnReply{Responder: name, Text: text})
	if err != nil {
		return err
	}
	if _, err := resp.Write([]byte("event: final\ndata: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.app.Stats())
}

func (s *Server) handleRelease(c echo.Context) error {
	s.app.Release(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
