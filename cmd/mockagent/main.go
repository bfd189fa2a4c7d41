// Package main runs a scripted AG-UI agent for exercising threadline
// clients without a model provider.
//
// Replies are deterministic: "hi" is answered with "Hi there", a message
// starting with "search " announces a deferred "search" tool call, and
// deferred results are acknowledged in text.
//
// Configuration is via environment variables:
//
//	MOCKAGENT_PORT        - Server port (default: 8000)
//	MOCKAGENT_LOG_LEVEL   - debug, info, warn or error (default: info)
//	MOCKAGENT_TOKEN       - Required bearer token (optional)
//	MOCKAGENT_CHUNK_DELAY - Pause between frames (default: 30ms)
//
// Usage:
//
//	go run ./cmd/mockagent
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	e := newServer(cfg, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("mock agent starting", "port", cfg.Port, "auth", cfg.Token != "")
	if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("server stopped")
}

func newServer(cfg *Config, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	NewHandler(cfg, logger).RegisterRoutes(e)
	return e
}
