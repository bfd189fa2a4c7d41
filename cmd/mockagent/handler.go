package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	aguievents "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/labstack/echo/v4"

	"github.com/spetersoncode/threadline/transport"
)

// Handler serves scripted AG-UI runs over SSE.
type Handler struct {
	config *Config
	logger *slog.Logger
}

// NewHandler creates a handler for cfg.
func NewHandler(cfg *Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{config: cfg, logger: logger}
}

// RegisterRoutes mounts the agent endpoints on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST(transport.DefaultRunPath, h.Run, h.requireToken)
	e.POST(transport.DefaultDeferredPath, h.DeferredResults, h.requireToken)
	e.GET("/health", h.Health)
}

// Run answers a new run request.
func (h *Handler) Run(c echo.Context) error {
	var input transport.RunInput
	if err := c.Bind(&input); err != nil {
		h.logger.Warn("invalid request body", "error", err)
		return c.String(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return h.stream(c, input.RunID, input.ThreadID, respond(input))
}

// DeferredResults answers a continuation carrying tool-call decisions.
func (h *Handler) DeferredResults(c echo.Context) error {
	var input transport.DeferredInput
	if err := c.Bind(&input); err != nil {
		h.logger.Warn("invalid request body", "error", err)
		return c.String(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if len(input.DeferredResults) == 0 {
		return c.String(http.StatusBadRequest, "deferred_results is required")
	}
	return h.stream(c, input.RunID, input.ThreadID, resume(input))
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) stream(c echo.Context, runID, threadID string, evs []aguievents.Event) error {
	start := time.Now()
	log := h.logger.With("run_id", runID, "thread_id", threadID)

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for i, ev := range evs {
		if i > 0 && h.config.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				log.Info("client went away", "events_sent", i)
				return nil
			case <-time.After(h.config.ChunkDelay):
			}
		}
		if err := writeSSE(w, ev); err != nil {
			log.Error("failed to write SSE event", "error", err, "event_type", ev.Type())
			return nil
		}
	}
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return nil
	}
	w.Flush()

	log.Info("request completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"events_sent", len(evs),
	)
	return nil
}

// requireToken rejects requests without the configured bearer token.
func (h *Handler) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.config.Token == "" {
			return next(c)
		}
		got, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.config.Token)) != 1 {
			h.logger.Warn("unauthorized request", "path", c.Path())
			return c.String(http.StatusUnauthorized, "Unauthorized")
		}
		return next(c)
	}
}

// writeSSE writes an AG-UI event in SSE format.
func writeSSE(w *echo.Response, ev aguievents.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	// event: TYPE\ndata: {json}\n\n
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	w.Flush()
	return nil
}
