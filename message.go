package threadline

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one finalized entry of a conversation transcript.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// Conversation owns an ordered sequence of messages.
// Messages are ordered by creation time.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(conversationID, content string) Message {
	return Message{
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(conversationID, content string) Message {
	return Message{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        content,
		Timestamp:      time.Now(),
	}
}
