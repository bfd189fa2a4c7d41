package toolcall

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RejectedMessage is the message sent with a rejected tool call.
const RejectedMessage = "Rejected"

// TimeoutMessage is the message sent when nobody decided in time.
const TimeoutMessage = "approval timeout"

// ErrNoPending is returned when a decision names a tool call that is not
// awaiting approval.
var ErrNoPending = errors.New("toolcall: no pending approval")

// Decision is a user's decision on a tool call.
type Decision struct {
	ToolCallID string // ID of the tool call being approved/rejected
	Approved   bool
	Message    string // Result text sent back to the agent
}

type pendingApproval struct {
	record Record
	timer  *time.Timer
	seq    uint64
}

// Broker holds tool calls awaiting a human decision and routes decisions
// back to the controller that submitted them. Undecided calls are
// rejected once the timeout elapses.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]*pendingApproval
	seq      uint64
	timeout  time.Duration
	onSubmit func(Record)
	resolve  func(Decision)
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithApprovalTimeout sets how long a tool call may wait for a decision.
// Zero disables the timeout.
func WithApprovalTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		b.timeout = d
	}
}

// WithOnSubmit sets a callback invoked when a tool call starts waiting
// for approval.
func WithOnSubmit(fn func(Record)) BrokerOption {
	return func(b *Broker) {
		b.onSubmit = fn
	}
}

// NewBroker creates a Broker. The default timeout is 5 minutes.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		pending: make(map[string]*pendingApproval),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// submit registers rec as awaiting a decision.
func (b *Broker) submit(rec Record) {
	b.mu.Lock()
	b.seq++
	p := &pendingApproval{record: rec, seq: b.seq}
	b.pending[rec.ToolCallID] = p
	if b.timeout > 0 {
		id := rec.ToolCallID
		p.timer = time.AfterFunc(b.timeout, func() {
			_ = b.Decide(Decision{ToolCallID: id, Approved: false, Message: TimeoutMessage})
		})
	}
	b.mu.Unlock()

	if b.onSubmit != nil {
		b.onSubmit(rec)
	}
}

// appendArgs extends the arguments of a pending tool call.
func (b *Broker) appendArgs(id, fragment string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[id]; ok {
		p.record.ArgsRaw += fragment
	}
}

// Decide routes a decision to the waiting tool call.
// Returns ErrNoPending if the tool call is not awaiting approval.
func (b *Broker) Decide(d Decision) error {
	b.mu.Lock()
	p, ok := b.pending[d.ToolCallID]
	if ok {
		delete(b.pending, d.ToolCallID)
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	resolve := b.resolve
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w for tool call %q", ErrNoPending, d.ToolCallID)
	}
	if resolve != nil {
		resolve(d)
	}
	return nil
}

// Approve approves a tool call. An empty message sends the tool call's
// arguments back as its result.
func (b *Broker) Approve(toolCallID, message string) error {
	if message == "" {
		b.mu.Lock()
		if p, ok := b.pending[toolCallID]; ok {
			message = p.record.ArgsRaw
		}
		b.mu.Unlock()
	}
	return b.Decide(Decision{
		ToolCallID: toolCallID,
		Approved:   true,
		Message:    message,
	})
}

// Reject rejects a tool call.
func (b *Broker) Reject(toolCallID string) error {
	return b.Decide(Decision{
		ToolCallID: toolCallID,
		Approved:   false,
		Message:    RejectedMessage,
	})
}

// Pending returns the tool calls awaiting a decision, oldest first.
func (b *Broker) Pending() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps := make([]*pendingApproval, 0, len(b.pending))
	for _, p := range b.pending {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].seq < ps[j].seq })

	out := make([]Record, len(ps))
	for i, p := range ps {
		out[i] = p.record
	}
	return out
}

// PendingCount returns the number of pending approval requests.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HasPending returns true if there are any pending approval requests.
func (b *Broker) HasPending() bool {
	return b.PendingCount() > 0
}

// clear drops every pending approval without deciding it.
func (b *Broker) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, p := range b.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(b.pending, id)
	}
}
