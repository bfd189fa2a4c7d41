package protocol

import (
	"encoding/json"
	"strings"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// TypeRaw is the type of events produced from payloads that are not JSON objects.
const TypeRaw = "raw"

// Field aliases accepted on the wire. Lookups try each alias in order and
// return the first non-empty value.
var (
	textFields       = []string{"delta", "content", "text"}
	toolCallIDFields = []string{"tool_call_id", "toolCallId"}
	toolNameFields   = []string{"tool_name", "toolName", "toolCallName"}
	argsFields       = []string{"args", "arguments"}
	parentFields     = []string{"parent_message_id", "parentMessageId"}
)

// Event is a decoded frame payload. Fields holds the complete JSON object;
// Type is its "type" field, or empty when absent.
type Event struct {
	Type   string
	Fields map[string]any
}

// NewRawEvent returns the fallback event for a payload that is not JSON.
func NewRawEvent(payload string) Event {
	return Event{
		Type:   TypeRaw,
		Fields: map[string]any{"type": TypeRaw, "raw": payload},
	}
}

// Is reports whether the event has the given AG-UI type.
func (e Event) Is(t events.EventType) bool {
	return events.EventType(e.Type) == t
}

// IsRaw reports whether the event is a raw fallback.
func (e Event) IsRaw() bool {
	return e.Type == TypeRaw
}

// Raw returns the original payload of a raw event.
func (e Event) Raw() string {
	s, _ := e.Fields["raw"].(string)
	return s
}

// String returns the first non-empty string value among keys.
func (e Event) String(keys ...string) string {
	for _, k := range keys {
		if s := stringValue(e.Fields[k]); s != "" {
			return s
		}
	}
	return ""
}

// Text returns the text delta of a TEXT_MESSAGE_CONTENT event.
func (e Event) Text() string {
	return e.String(textFields...)
}

// ToolCallID returns the tool-call identifier, if any.
func (e Event) ToolCallID() string {
	return e.String(toolCallIDFields...)
}

// ToolName returns the tool name, if any.
func (e Event) ToolName() string {
	return e.String(toolNameFields...)
}

// ParentMessageID returns the parent message back-reference, if any.
func (e Event) ParentMessageID() string {
	return e.String(parentFields...)
}

// Args returns the serialized tool arguments. TOOL_CALL_ARGS events carry
// their fragment in "delta".
func (e Event) Args() string {
	if s := e.String(argsFields...); s != "" {
		return s
	}
	if e.Is(events.EventTypeToolCallArgs) {
		return e.String("delta")
	}
	return ""
}

// IsToolCall reports whether the event belongs to a tool call: its type
// mentions "tool" or it carries a tool-call identifier.
func (e Event) IsToolCall() bool {
	if strings.Contains(strings.ToLower(e.Type), "tool") {
		return true
	}
	return e.ToolCallID() != ""
}

// stringValue renders a JSON value as a string. Non-string values are
// re-encoded as JSON.
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
