package conversation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spetersoncode/threadline"
)

// MemoryStore provides thread-safe in-memory storage.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	convs  map[string]*threadline.Conversation
	order  []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*threadline.Conversation),
	}
}

// Create starts an empty conversation.
func (m *MemoryStore) Create(_ context.Context) (threadline.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &threadline.Conversation{
		ID:        strconv.FormatInt(m.nextID, 10),
		CreatedAt: time.Now(),
	}
	m.convs[c.ID] = c
	m.order = append(m.order, c.ID)
	return threadline.Conversation{ID: c.ID, CreatedAt: c.CreatedAt}, nil
}

// Get returns a conversation without its messages.
func (m *MemoryStore) Get(_ context.Context, id string) (threadline.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return threadline.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return threadline.Conversation{ID: c.ID, CreatedAt: c.CreatedAt}, nil
}

// List returns all conversations, newest first.
func (m *MemoryStore) List(_ context.Context) ([]threadline.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]threadline.Conversation, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		c := m.convs[m.order[i]]
		result = append(result, threadline.Conversation{ID: c.ID, CreatedAt: c.CreatedAt})
	}
	return result, nil
}

// Messages returns a copy of the conversation's messages.
func (m *MemoryStore) Messages(_ context.Context, id string) ([]threadline.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	result := make([]threadline.Message, len(c.Messages))
	copy(result, c.Messages)
	return result, nil
}

// Append adds a message to its conversation.
func (m *MemoryStore) Append(_ context.Context, msg threadline.Message) (threadline.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[msg.ConversationID]
	if !ok {
		return threadline.Message{}, fmt.Errorf("%w: %s", ErrNotFound, msg.ConversationID)
	}
	msg = fill(msg)
	c.Messages = append(c.Messages, msg)
	return msg, nil
}

// fill assigns an ID and timestamp to messages that lack them.
func fill(msg threadline.Message) threadline.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}
