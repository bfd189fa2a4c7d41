// Package event provides the notifications a client publishes while a run
// streams. Observers receive them on a buffered channel; publishing never
// blocks the run.
package event

import (
	"time"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/protocol"
	"github.com/spetersoncode/threadline/toolcall"
)

// Type identifies the kind of event.
type Type string

// Run lifecycle events
const (
	// RunStart fires when the primary stream has been opened.
	RunStart Type = "run_start"

	// RunEnd fires when a run completes. Message is set when the run
	// produced an assistant message.
	RunEnd Type = "run_end"

	// RunError fires when a run fails. Partial text is discarded.
	RunError Type = "run_error"

	// RunSuperseded fires when a run's output was dropped because the
	// user switched conversations.
	RunSuperseded Type = "run_superseded"
)

// Stream events
const (
	// MessageDelta fires for each text fragment appended to the run.
	MessageDelta Type = "message_delta"

	// StreamEvent fires for every decoded event that is neither text nor a
	// tool call, including raw fallbacks.
	StreamEvent Type = "stream_event"
)

// Tool call lifecycle events
const (
	// ToolCallSeen fires the first time a tool-call identifier appears.
	ToolCallSeen Type = "tool_call_seen"

	// ToolCallPending fires when a tool call waits for manual approval.
	ToolCallPending Type = "tool_call_pending"

	// ToolCallResolved fires when a deferred result is sent for a tool call.
	ToolCallResolved Type = "tool_call_resolved"

	// DeferralFailed fires when a deferred-results request fails. The run
	// carries on.
	DeferralFailed Type = "deferral_failed"
)

// Event represents an observable occurrence during a run.
type Event struct {
	// Type identifies the kind of event.
	Type Type

	// RunID and ThreadID identify the run and its conversation.
	RunID    string
	ThreadID string

	// Delta contains the text fragment for MessageDelta events.
	Delta string

	// Stream contains the decoded event for StreamEvent events.
	Stream *protocol.Event

	// ToolCall contains the record for tool-call events.
	ToolCall *toolcall.Record

	// Approved is the decision sent with ToolCallResolved events.
	Approved bool

	// Message contains the assistant message for RunEnd events.
	Message *threadline.Message

	// Error contains the error for RunError and DeferralFailed events.
	Error error

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Emit sends an event with timestamp to the channel (non-blocking).
// A nil channel drops the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
		// Channel full - don't block
	}
}

// NewChannel creates a buffered event channel with standard capacity.
func NewChannel() chan Event {
	return make(chan Event, 100)
}
