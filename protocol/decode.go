// Package protocol decodes AG-UI frames into events.
//
// Each frame carries zero or more "data:" lines. The payload lines are joined
// with newlines and interpreted as one of:
//
//   - the literal terminal marker [DONE], which ends the stream
//   - a JSON object, which becomes an [Event] dispatched on its "type" field
//   - anything else, which becomes a raw [Event] of type "raw"
//
// Decoding never fails a stream. Malformed payloads are downgraded and the
// parse failure is reported on [Result.Err] for logging only.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spetersoncode/threadline"
)

// Terminal is the payload that marks the end of a stream.
const Terminal = "[DONE]"

const dataPrefix = "data:"

// Kind describes what a frame decoded to.
type Kind int

const (
	// KindNone means the frame carried no payload lines and is skipped.
	KindNone Kind = iota
	// KindEvent means the frame decoded to an Event.
	KindEvent
	// KindTerminal means the frame carried the terminal marker.
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindTerminal:
		return "terminal"
	default:
		return "none"
	}
}

// Result is the outcome of decoding one frame.
type Result struct {
	Kind  Kind
	Event Event

	// Err is set when the payload was not a JSON object and Event holds the
	// raw fallback. It is informational.
	Err *threadline.ProtocolDecodeError
}

var errNotObject = errors.New("payload is not a JSON object")

// Decode decodes one frame.
func Decode(frame string) Result {
	payload, ok := Payload(frame)
	if !ok {
		return Result{Kind: KindNone}
	}
	if payload == Terminal {
		return Result{Kind: KindTerminal}
	}

	var fields map[string]any
	err := json.Unmarshal([]byte(payload), &fields)
	if err == nil && fields == nil {
		// "null" unmarshals without error into a nil map.
		err = errNotObject
	}
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			err = errNotObject
		}
		return Result{
			Kind:  KindEvent,
			Event: NewRawEvent(payload),
			Err:   &threadline.ProtocolDecodeError{Payload: payload, Cause: err},
		}
	}

	typ, _ := fields["type"].(string)
	return Result{
		Kind:  KindEvent,
		Event: Event{Type: typ, Fields: fields},
	}
}

// Payload extracts the joined data lines of a frame. It reports false when
// the frame has no data lines.
func Payload(frame string) (string, bool) {
	var lines []string
	for line := range strings.SplitSeq(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if rest, ok := strings.CutPrefix(line, dataPrefix); ok {
			lines = append(lines, strings.TrimSpace(rest))
		}
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}
