// Package main is an interactive terminal client for AG-UI agents.
//
// Lines typed at the prompt are sent to the selected conversation and the
// reply is streamed as it arrives. Tool calls are approved automatically
// or, with THREADLINE_APPROVAL=manual, through /approve and /reject.
//
// Configuration is via environment variables, optionally layered over a
// YAML file named by THREADLINE_CONFIG:
//
//	THREADLINE_BASE_URL           - Backend origin (default: http://localhost:8000)
//	THREADLINE_TOKEN              - Bearer token (optional)
//	THREADLINE_TOKEN_FILE         - File re-read when the token is rejected (optional)
//	THREADLINE_APPROVAL           - auto or manual (default: auto)
//	THREADLINE_DB                 - SQLite file for conversations (default: in memory)
//	THREADLINE_CONTINUATION_DELAY - Auto-approval delay (default: 100ms)
//	THREADLINE_MAX_CONTINUATIONS  - Deferred requests per run (default: 8)
//	THREADLINE_APPROVAL_TIMEOUT   - Manual approval timeout (default: 5m)
//	THREADLINE_STREAM_TIMEOUT     - Per-stream timeout (default: none)
//	THREADLINE_RETRY_ATTEMPTS     - Attempts to open a stream (default: 1)
//	THREADLINE_LOG_LEVEL          - debug, info, warn or error (default: warn)
//
// Usage:
//
//	go run ./cmd/threadline
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spetersoncode/threadline/auth"
	"github.com/spetersoncode/threadline/client"
	"github.com/spetersoncode/threadline/conversation"
	"github.com/spetersoncode/threadline/event"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	events := event.NewChannel()
	c, err := client.New(clientConfig(cfg, store, logger, events))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	convs, err := c.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list conversations: %v", err)
	}
	if len(convs) > 0 {
		err = c.Select(ctx, convs[0].ID)
	} else {
		_, err = c.Create(ctx)
	}
	if err != nil {
		log.Fatalf("Failed to open conversation: %v", err)
	}

	r := newREPL(c, os.Stdout)
	go r.render(ctx, events)

	fmt.Printf("threadline connected to %s (approval: %s)\n", cfg.BaseURL, cfg.Mode())
	fmt.Printf("conversation %s. Type /help for commands.\n", c.Conversations().Current())
	r.printHistory()

	done := make(chan error, 1)
	go func() { done <- r.run(ctx, os.Stdin) }()

	select {
	case <-ctx.Done():
	case err := <-done:
		if err != nil {
			log.Printf("input error: %v", err)
		}
	}
	if run := c.Current(); run != nil {
		run.Cancel()
	}
}

func clientConfig(cfg *Config, store conversation.Store, logger *slog.Logger, events chan<- event.Event) client.Config {
	cc := client.Config{
		BaseURL:           cfg.BaseURL,
		Store:             store,
		Mode:              cfg.Mode(),
		ContinuationDelay: cfg.ContinuationDelay,
		MaxContinuations:  cfg.MaxContinuations,
		ApprovalTimeout:   cfg.ApprovalTimeout,
		StreamTimeout:     cfg.StreamTimeout,
		Logger:            logger,
		Events:            events,
	}
	if cfg.RetryAttempts > 1 {
		retry := client.DefaultRetryConfig()
		retry.MaxAttempts = cfg.RetryAttempts
		cc.Retry = &retry
	}
	cc.Tokens = tokenSource(cfg)
	return cc
}

// tokenSource returns nil when no token is configured.
func tokenSource(cfg *Config) auth.TokenSource {
	if cfg.Token == "" && cfg.TokenFile == "" {
		return nil
	}
	var opts []auth.JWTOption
	if cfg.TokenFile != "" {
		path := cfg.TokenFile
		opts = append(opts, auth.WithRefresh(func(context.Context) (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read token file: %w", err)
			}
			return strings.TrimSpace(string(data)), nil
		}))
	}
	return auth.NewJWTSource(cfg.Token, opts...)
}

func openStore(cfg *Config) (conversation.Store, func(), error) {
	if cfg.DB == "" {
		return conversation.NewMemoryStore(), func() {}, nil
	}
	s, err := conversation.NewSQLiteStore(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}
