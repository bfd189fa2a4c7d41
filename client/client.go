package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/auth"
	"github.com/spetersoncode/threadline/conversation"
	"github.com/spetersoncode/threadline/event"
	"github.com/spetersoncode/threadline/internal/retry"
	"github.com/spetersoncode/threadline/run"
	"github.com/spetersoncode/threadline/toolcall"
	"github.com/spetersoncode/threadline/transport"
)

var (
	// ErrMissingBaseURL is returned by New when no backend URL is configured.
	ErrMissingBaseURL = errors.New("client: base URL is required")

	// ErrNoActiveRun is returned by Approve and Reject when no run is in flight.
	ErrNoActiveRun = errors.New("client: no active run")
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the backend origin, e.g. "http://localhost:8000".
	BaseURL string

	// RunPath and DeferredPath override the default endpoint paths.
	RunPath      string
	DeferredPath string

	// Tokens supplies the bearer token. Nil sends no Authorization header.
	Tokens auth.TokenSource

	// Store persists conversations. If nil, an in-memory store is used.
	Store conversation.Store

	// Mode selects auto or manual tool-call approval.
	Mode toolcall.Mode

	// ContinuationDelay is the auto-approval delay. Zero uses
	// toolcall.DefaultDelay; a negative value approves immediately.
	ContinuationDelay time.Duration

	// MaxContinuations bounds deferred-results requests per run. Zero uses
	// toolcall.DefaultMaxContinuations.
	MaxContinuations int

	// ApprovalTimeout bounds how long a manual approval may wait. Zero uses
	// the broker default of 5 minutes.
	ApprovalTimeout time.Duration

	// StreamTimeout bounds each stream of a run. Zero means no limit.
	StreamTimeout time.Duration

	// Retry configures retries for opening streams.
	// If nil, streams are opened with a single attempt.
	Retry *RetryConfig

	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	// Logger receives structured logs. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Events is an optional channel for receiving run events.
	// Events are sent non-blocking; if the channel is full, events are dropped.
	Events chan<- event.Event

	// Tools is forwarded as the frontend tool list of every run.
	Tools []any
}

// Client sends messages to an AG-UI backend and reconciles the replies
// with the selected conversation.
type Client struct {
	cfg       Config
	transport *transport.Client
	manager   *conversation.Manager
	logger    *slog.Logger

	mu      sync.Mutex
	current *Run
}

// New creates a client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Store == nil {
		cfg.Store = conversation.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	retryCfg := retry.Disabled()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}

	tc := transport.New(cfg.BaseURL,
		transport.WithRunPath(cfg.RunPath),
		transport.WithDeferredPath(cfg.DeferredPath),
		transport.WithHTTPClient(cfg.HTTPClient),
		transport.WithTokens(cfg.Tokens),
		transport.WithRetry(retryCfg),
		transport.WithLogger(cfg.Logger),
	)

	return &Client{
		cfg:       cfg,
		transport: tc,
		manager:   conversation.NewManager(cfg.Store, cfg.Logger),
		logger:    cfg.Logger,
	}, nil
}

// Conversations returns the conversation manager.
func (c *Client) Conversations() *conversation.Manager { return c.manager }

// Create starts a new conversation and selects it.
func (c *Client) Create(ctx context.Context) (threadline.Conversation, error) {
	return c.manager.Create(ctx)
}

// List returns all stored conversations, newest first.
func (c *Client) List(ctx context.Context) ([]threadline.Conversation, error) {
	return c.cfg.Store.List(ctx)
}

// Select switches to conversation id. A run bound to another conversation
// is superseded.
func (c *Client) Select(ctx context.Context, id string) error {
	return c.manager.Select(ctx, id)
}

// Reload refreshes the transcript of the current conversation. Without
// force it returns conversation.ErrReloadSkipped while a run is active.
func (c *Client) Reload(ctx context.Context, force bool) error {
	return c.manager.Reload(ctx, force)
}

// Transcript returns the visible messages of the current conversation.
func (c *Client) Transcript() []threadline.Message {
	return c.manager.Transcript()
}

// Current returns the run most recently started by Send, or nil.
func (c *Client) Current() *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Approve approves a tool call of the current run that is waiting for a
// decision. An empty message sends the call's arguments as its result.
func (c *Client) Approve(toolCallID, message string) error {
	r := c.Current()
	if r == nil {
		return ErrNoActiveRun
	}
	return r.tools.Broker().Approve(toolCallID, message)
}

// Reject rejects a tool call of the current run.
func (c *Client) Reject(toolCallID string) error {
	r := c.Current()
	if r == nil {
		return ErrNoActiveRun
	}
	return r.tools.Broker().Reject(toolCallID)
}

// Pending returns the tool calls of the current run awaiting a decision.
func (c *Client) Pending() []toolcall.Record {
	r := c.Current()
	if r == nil {
		return nil
	}
	return r.tools.Broker().Pending()
}

// Send posts text as a user message in the current conversation and starts
// a run. It returns once the backend has accepted the request; a non-2xx
// answer fails the call and nothing is streamed. The run continues in the
// background until ctx is cancelled or the run ends.
func (c *Client) Send(ctx context.Context, text string) (*Run, error) {
	threadID := c.manager.Current()
	if threadID == "" {
		return nil, threadline.ErrNoConversation
	}
	if _, err := c.manager.AddUserMessage(ctx, text); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	sess := run.New(threadID)
	log := c.logger.With(
		"run_id", sess.RunID,
		"thread_id", sess.ThreadID,
	)
	r := &Run{
		sess:    sess,
		done:    make(chan struct{}),
		log:     log,
		replyID: uuid.NewString(),
	}
	opts := []toolcall.Option{
		toolcall.WithMode(c.cfg.Mode),
		toolcall.WithMaxContinuations(c.cfg.MaxContinuations),
		toolcall.WithBroker(c.newBroker(r)),
		toolcall.WithLogger(log),
	}
	if c.cfg.ContinuationDelay != 0 {
		opts = append(opts, toolcall.WithDelay(max(c.cfg.ContinuationDelay, 0)))
	}
	r.tools = toolcall.NewController(opts...)

	if err := c.manager.BeginRun(sess, r.tools); err != nil {
		return nil, err
	}
	if err := sess.Start(); err != nil {
		return nil, err
	}

	r.input = transport.NewRunInput(sess.RunID, threadID,
		transport.ToWireMessages(c.manager.Transcript()), c.cfg.Tools)

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	log.Info("run started", "message_count", len(r.input.Messages), "mode", c.cfg.Mode.String())
	body, err := c.transport.Run(runCtx, r.input)
	if err != nil {
		cancel()
		sess.Fail(err)
		c.finish(runCtx, r)
		return nil, err
	}

	c.mu.Lock()
	c.current = r
	c.mu.Unlock()

	c.emit(r, event.Event{Type: event.RunStart})
	go c.execute(runCtx, r, body)
	return r, nil
}

func (c *Client) newBroker(r *Run) *toolcall.Broker {
	opts := []toolcall.BrokerOption{
		toolcall.WithOnSubmit(func(rec toolcall.Record) {
			r.log.Info("tool call awaiting approval",
				"tool_call_id", rec.ToolCallID,
				"tool_name", rec.ToolName,
			)
			c.emit(r, event.Event{Type: event.ToolCallPending, ToolCall: &rec})
		}),
	}
	if c.cfg.ApprovalTimeout > 0 {
		opts = append(opts, toolcall.WithApprovalTimeout(c.cfg.ApprovalTimeout))
	}
	return toolcall.NewBroker(opts...)
}

func (c *Client) emit(r *Run, e event.Event) {
	e.RunID = r.sess.RunID
	e.ThreadID = r.sess.ThreadID
	event.Emit(c.cfg.Events, e)
}
