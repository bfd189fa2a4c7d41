// Package toolcall decides what happens to tool calls announced on an
// AG-UI stream.
//
// Every tool-call identifier is handled at most once per run. The first
// event carrying an unseen identifier creates a [Record] and marks the
// identifier handled before anything else happens, so redelivery of the
// same call, on the same stream or a continuation stream, is a no-op.
//
// In auto mode the call is approved after a short delay by queueing a
// deferred result. In manual mode it waits in a [Broker] until a person
// approves or rejects it. The owner of the run drains the queue with
// [Controller.Next] and sends each result to the deferred-results endpoint;
// the stream that answers is processed like the primary one, so a
// continuation may itself announce new tool calls.
package toolcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/threadline/protocol"
	"github.com/spetersoncode/threadline/transport"
)

// Mode selects how tool calls are resolved.
type Mode int

const (
	// ModeAuto approves every tool call after the controller's delay.
	ModeAuto Mode = iota
	// ModeManual waits for a decision through the Broker.
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// ParseMode parses "auto" or "manual".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "manual":
		return ModeManual, nil
	default:
		return ModeAuto, fmt.Errorf("toolcall: unknown approval mode %q", s)
	}
}

const (
	// DefaultDelay is the auto-approval delay.
	DefaultDelay = 100 * time.Millisecond
	// DefaultMaxContinuations bounds deferred-results requests per run.
	DefaultMaxContinuations = 8
)

var (
	// ErrDrained is returned by Next when no task is queued and no
	// decision is outstanding.
	ErrDrained = errors.New("toolcall: no outstanding work")

	// ErrContinuationLimit is returned by Next once the run has issued
	// its maximum number of deferred-results requests.
	ErrContinuationLimit = errors.New("toolcall: continuation limit reached")
)

// Record is a tool call seen on a stream.
type Record struct {
	ToolCallID      string
	ToolName        string
	ArgsRaw         string
	ParentMessageID string
	Seen            time.Time
}

// Task is a deferred result ready to be sent once NotBefore has passed.
type Task struct {
	Result    transport.DeferredResult
	NotBefore time.Time
}

// Controller tracks the tool calls of one run.
// All methods are safe for concurrent use.
type Controller struct {
	mode             Mode
	delay            time.Duration
	maxContinuations int
	broker           *Broker
	logger           *slog.Logger

	mu      sync.Mutex
	handled map[string]struct{}
	records map[string]*Record
	// awaiting holds manual calls submitted to the broker and not yet decided.
	awaiting map[string]struct{}
	queue   []Task
	issued  int
	wake    chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithMode sets the approval mode.
func WithMode(m Mode) Option {
	return func(c *Controller) {
		c.mode = m
	}
}

// WithDelay sets the auto-approval delay.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithMaxContinuations bounds the number of deferred-results requests.
func WithMaxContinuations(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxContinuations = n
		}
	}
}

// WithBroker sets the broker used in manual mode.
func WithBroker(b *Broker) Option {
	return func(c *Controller) {
		if b != nil {
			c.broker = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a controller for one run.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		mode:             ModeAuto,
		delay:            DefaultDelay,
		maxContinuations: DefaultMaxContinuations,
		logger:           slog.Default(),
		handled:          make(map[string]struct{}),
		records:          make(map[string]*Record),
		awaiting:         make(map[string]struct{}),
		wake:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.broker == nil {
		c.broker = NewBroker()
	}
	c.broker.mu.Lock()
	c.broker.resolve = c.decided
	c.broker.mu.Unlock()
	return c
}

// Mode returns the approval mode.
func (c *Controller) Mode() Mode { return c.mode }

// Broker returns the broker that holds manual approvals.
func (c *Controller) Broker() *Broker { return c.broker }

// Handle processes a tool-call event. It returns the new record and true
// the first time an identifier is seen, and false for events without an
// identifier or for identifiers already handled. Argument fragments for a
// call that has not been resolved yet are appended to its record.
func (c *Controller) Handle(ev protocol.Event) (*Record, bool) {
	id := ev.ToolCallID()
	if id == "" {
		return nil, false
	}

	c.mu.Lock()
	if _, seen := c.handled[id]; seen {
		if rec, ok := c.records[id]; ok && ev.Is(events.EventTypeToolCallArgs) {
			fragment := ev.Args()
			rec.ArgsRaw += fragment
			if c.mode == ModeManual {
				c.broker.appendArgs(id, fragment)
			}
		}
		c.mu.Unlock()
		return nil, false
	}
	c.handled[id] = struct{}{}

	rec := &Record{
		ToolCallID:      id,
		ToolName:        ev.ToolName(),
		ArgsRaw:         ev.Args(),
		ParentMessageID: ev.ParentMessageID(),
		Seen:            time.Now(),
	}
	c.records[id] = rec
	snapshot := *rec

	if c.mode == ModeAuto {
		c.enqueueLocked(Task{
			Result:    transport.DeferredResult{ToolCallID: id, Approval: true},
			NotBefore: snapshot.Seen.Add(c.delay),
		})
		c.mu.Unlock()
	} else {
		c.awaiting[id] = struct{}{}
		c.mu.Unlock()
		c.broker.submit(snapshot)
	}

	c.logger.Debug("tool call handled",
		"tool_call_id", id,
		"tool_name", snapshot.ToolName,
		"mode", c.mode.String(),
	)
	return &snapshot, true
}

// decided turns a broker decision into a task.
func (c *Controller) decided(d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.awaiting, d.ToolCallID)
	if _, ok := c.records[d.ToolCallID]; !ok {
		// Cleared or unmarked while waiting.
		c.signal()
		return
	}
	c.enqueueLocked(Task{
		Result: transport.DeferredResult{
			ToolCallID: d.ToolCallID,
			Approval:   d.Approved,
			Message:    d.Message,
		},
		NotBefore: time.Now(),
	})
}

func (c *Controller) enqueueLocked(t Task) {
	c.queue = append(c.queue, t)
	c.signal()
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Next blocks until the next task is due and returns it. Tasks are
// returned in the order they were queued. It returns ErrDrained when
// nothing is queued or awaiting approval, and ErrContinuationLimit when
// the run may not send further deferred results.
func (c *Controller) Next(ctx context.Context) (Task, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			if c.issued >= c.maxContinuations {
				c.mu.Unlock()
				return Task{}, ErrContinuationLimit
			}
			head := c.queue[0]
			wait := time.Until(head.NotBefore)
			if wait <= 0 {
				c.queue = c.queue[1:]
				c.issued++
				delete(c.records, head.Result.ToolCallID)
				c.mu.Unlock()
				return head, nil
			}
			c.mu.Unlock()

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Task{}, ctx.Err()
			case <-timer.C:
			}
			continue
		}
		// The queue and the awaiting set change under the same lock, so a
		// decision is never between the two when this check runs.
		awaiting := len(c.awaiting)
		c.mu.Unlock()

		if awaiting == 0 {
			return Task{}, ErrDrained
		}
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-c.wake:
		}
	}
}

// Outstanding reports whether tasks are queued or decisions pending.
func (c *Controller) Outstanding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0 || len(c.awaiting) > 0
}

// Handled reports whether id has been handled.
func (c *Controller) Handled(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handled[id]
	return ok
}

// Issued returns the number of tasks handed out by Next.
func (c *Controller) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued
}

// Unmark forgets id so that a later delivery is handled again. It is used
// when the deferred-results request for id failed.
func (c *Controller) Unmark(id string) {
	c.mu.Lock()
	delete(c.handled, id)
	delete(c.records, id)
	delete(c.awaiting, id)
	c.signal()
	c.mu.Unlock()
}

// Clear drops all records, queued tasks and pending approvals.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.handled = make(map[string]struct{})
	c.records = make(map[string]*Record)
	c.queue = nil
	c.awaiting = make(map[string]struct{})
	c.mu.Unlock()
	c.broker.clear()
	c.signal()
}
