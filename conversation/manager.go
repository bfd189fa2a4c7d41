// Package conversation keeps the visible transcript consistent with
// persisted conversation history while runs stream in the background.
//
// Three rules hold:
//
//   - Switching to another conversation supersedes the run bound to the
//     previous one, drops its tool-call state, and loads the new
//     conversation's history unconditionally.
//   - A reload of the current conversation is skipped while a run for it is
//     active, unless forced, so a stale fetch cannot overwrite it.
//   - A completed run appends its single assistant message to the
//     conversation it started in. The visible transcript only changes if
//     that conversation is still selected.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/run"
	"github.com/spetersoncode/threadline/toolcall"
)

var (
	// ErrReloadSkipped is returned by Reload when a run is active for the
	// current conversation and the reload was not forced.
	ErrReloadSkipped = errors.New("conversation: reload skipped while run is active")

	// ErrConversationChanged is returned by BeginRun when the session is
	// bound to a conversation that is no longer selected.
	ErrConversationChanged = errors.New("conversation: selection changed")
)

// Manager owns the current selection, the visible transcript and the
// active run. It is safe for concurrent use.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu         sync.Mutex
	current    string
	transcript []threadline.Message
	active     *run.Session
	tools      *toolcall.Controller
}

// NewManager creates a manager over store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Current returns the selected conversation ID, or "" if none.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transcript returns a copy of the visible messages.
func (m *Manager) Transcript() []threadline.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]threadline.Message, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// Active returns the registered run, or nil.
func (m *Manager) Active() *run.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Create starts a new conversation and selects it.
func (m *Manager) Create(ctx context.Context) (threadline.Conversation, error) {
	c, err := m.store.Create(ctx)
	if err != nil {
		return threadline.Conversation{}, err
	}
	if err := m.Select(ctx, c.ID); err != nil {
		return threadline.Conversation{}, err
	}
	return c, nil
}

// Select makes id the current conversation and loads its history. A run
// bound to another conversation is superseded first.
func (m *Manager) Select(ctx context.Context, id string) error {
	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	if m.active != nil && m.active.ThreadID != id {
		m.supersedeLocked()
	}
	m.current = id
	m.transcript = nil
	m.mu.Unlock()

	return m.load(ctx, id)
}

// Reload refreshes the visible transcript of the current conversation.
func (m *Manager) Reload(ctx context.Context, force bool) error {
	m.mu.Lock()
	id := m.current
	busy := m.active != nil && m.active.Active() && m.active.ThreadID == id
	m.mu.Unlock()

	if id == "" {
		return threadline.ErrNoConversation
	}
	if busy && !force {
		m.logger.Debug("reload skipped", "thread_id", id)
		return ErrReloadSkipped
	}
	return m.load(ctx, id)
}

// load fetches the history of id and installs it if id is still selected.
func (m *Manager) load(ctx context.Context, id string) error {
	msgs, err := m.store.Messages(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != id {
		return nil
	}
	m.transcript = msgs
	return nil
}

// AddUserMessage persists a user message in the current conversation and
// shows it in the transcript.
func (m *Manager) AddUserMessage(ctx context.Context, text string) (threadline.Message, error) {
	id := m.Current()
	if id == "" {
		return threadline.Message{}, threadline.ErrNoConversation
	}
	msg, err := m.store.Append(ctx, threadline.NewUserMessage(id, text))
	if err != nil {
		return threadline.Message{}, err
	}
	m.show(msg)
	return msg, nil
}

// BeginRun registers sess as the active run together with its tool-call
// controller. A previous run still in flight is superseded.
func (m *Manager) BeginRun(sess *run.Session, tools *toolcall.Controller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return threadline.ErrNoConversation
	}
	if sess.ThreadID != m.current {
		return ErrConversationChanged
	}
	if m.active != nil && m.active != sess {
		m.supersedeLocked()
	}
	m.active = sess
	m.tools = tools
	return nil
}

// FinishRun unregisters sess and, if it completed with text, persists the
// assistant message in the conversation the run was bound to. It reports
// whether a message was written.
func (m *Manager) FinishRun(ctx context.Context, sess *run.Session) (threadline.Message, bool, error) {
	m.mu.Lock()
	if m.active == sess {
		m.active = nil
		m.tools = nil
	}
	m.mu.Unlock()

	text, ok := sess.Final()
	if !ok {
		return threadline.Message{}, false, nil
	}

	msg, err := m.store.Append(ctx, threadline.NewAssistantMessage(sess.ThreadID, text))
	if err != nil {
		return threadline.Message{}, false, err
	}
	m.show(msg)
	return msg, true, nil
}

// show appends msg to the transcript if its conversation is selected.
func (m *Manager) show(msg threadline.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == msg.ConversationID {
		m.transcript = append(m.transcript, msg)
	}
}

func (m *Manager) supersedeLocked() {
	if m.active.Supersede() {
		m.logger.Info("run superseded",
			"run_id", m.active.RunID,
			"thread_id", m.active.ThreadID,
		)
	}
	if m.tools != nil {
		m.tools.Clear()
	}
	m.active = nil
	m.tools = nil
}
