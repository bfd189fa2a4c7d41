package transport

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/threadline"
)

// ToWireMessages converts transcript messages to AG-UI wire messages.
func ToWireMessages(msgs []threadline.Message) []events.Message {
	result := make([]events.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, ToWireMessage(msg))
	}
	return result
}

// ToWireMessage converts a single transcript message. Messages without an
// ID get a generated one.
func ToWireMessage(msg threadline.Message) events.Message {
	id := msg.ID
	if id == "" {
		id = events.GenerateMessageID()
	}
	content := msg.Content
	return events.Message{
		ID:      id,
		Role:    string(toWireRole(msg.Role)),
		Content: &content,
	}
}

// FromWireMessage converts an AG-UI wire message back into a transcript
// message of the given conversation.
func FromWireMessage(conversationID string, msg events.Message) threadline.Message {
	m := threadline.Message{
		ID:             msg.ID,
		ConversationID: conversationID,
		Role:           threadline.Role(msg.Role),
	}
	if msg.Content != nil {
		m.Content = *msg.Content
	}
	if m.Role != threadline.RoleAssistant {
		m.Role = threadline.RoleUser
	}
	return m
}

func toWireRole(role threadline.Role) threadline.Role {
	switch role {
	case threadline.RoleAssistant:
		return threadline.RoleAssistant
	default:
		return threadline.RoleUser
	}
}
