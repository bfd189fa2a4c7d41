// Package run holds the state of one streaming agent turn.
//
// A Session moves through the states
//
//	Idle -> Active -> {Completed, Errored, Superseded}
//
// Terminal states are sticky: the first terminal transition wins and later
// ones report false. While active, TEXT_MESSAGE_CONTENT deltas accumulate
// into the session text; nothing else changes it. The text becomes a
// conversation message only through [Session.Final], and only once the
// session has completed.
//
// A Session is owned by the goroutine that drives its streams. Supersede,
// State and Text may be called from other goroutines.
package run

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"

	"github.com/spetersoncode/threadline/protocol"
)

// State is the lifecycle state of a Session.
type State int32

const (
	Idle State = iota
	Active
	Completed
	Errored
	Superseded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Errored:
		return "errored"
	case Superseded:
		return "superseded"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Completed || s == Errored || s == Superseded
}

// ErrNotIdle is returned when Start is called on a session that already started.
var ErrNotIdle = errors.New("run: session already started")

// Step describes the effect of applying one event.
type Step struct {
	// Delta is the text appended to the session, if any.
	Delta string

	// ToolCall is true when the event must be routed to the tool-call controller.
	ToolCall bool
}

// Session is one logical agent turn bound to a conversation thread.
type Session struct {
	RunID    string
	ThreadID string

	state   atomic.Int32
	mu      sync.Mutex
	text    strings.Builder
	err     error
	started time.Time
}

// New allocates an idle session with a fresh run ID bound to threadID.
func New(threadID string) *Session {
	return &Session{
		RunID:    uuid.NewString(),
		ThreadID: threadID,
	}
}

// Start transitions the session from Idle to Active with empty text.
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Active)) {
		return ErrNotIdle
	}
	s.mu.Lock()
	s.text.Reset()
	s.started = time.Now()
	s.mu.Unlock()
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Active reports whether the session still accepts events.
func (s *Session) Active() bool {
	return s.State() == Active
}

// Apply processes one event. Events applied outside the Active state have no effect.
func (s *Session) Apply(ev protocol.Event) Step {
	if !s.Active() {
		return Step{}
	}
	if ev.Is(events.EventTypeTextMessageContent) {
		delta := ev.Text()
		if delta != "" {
			s.mu.Lock()
			s.text.WriteString(delta)
			s.mu.Unlock()
		}
		return Step{Delta: delta}
	}
	if ev.IsToolCall() {
		return Step{ToolCall: true}
	}
	return Step{}
}

// Complete transitions an active session to Completed.
func (s *Session) Complete() bool {
	return s.state.CompareAndSwap(int32(Active), int32(Completed))
}

// Fail transitions an active session to Errored and records err.
func (s *Session) Fail(err error) bool {
	if !s.state.CompareAndSwap(int32(Active), int32(Errored)) {
		return false
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return true
}

// Supersede marks the session's output as stale. Idle sessions may be
// superseded before they start.
func (s *Session) Supersede() bool {
	for {
		cur := State(s.state.Load())
		if cur.Terminal() {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(Superseded)) {
			return true
		}
	}
}

// Text returns the text accumulated so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Final returns the accumulated text if the session completed with
// non-empty output. Errored and superseded sessions never yield text.
func (s *Session) Final() (string, bool) {
	if s.State() != Completed {
		return "", false
	}
	text := s.Text()
	return text, text != ""
}

// Err returns the error recorded by Fail.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Elapsed returns the time since Start.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}
