package conversation

import (
	"context"
	"errors"

	"github.com/spetersoncode/threadline"
)

var (
	// ErrNotFound indicates the requested conversation does not exist.
	ErrNotFound = errors.New("conversation: not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("conversation: store closed")
)

// Store persists conversations and their messages. Conversation IDs are
// the string form of backend-assigned integers.
type Store interface {
	// Create starts an empty conversation.
	Create(ctx context.Context) (threadline.Conversation, error)

	// Get returns a conversation without its messages.
	Get(ctx context.Context, id string) (threadline.Conversation, error)

	// List returns all conversations, newest first, without messages.
	List(ctx context.Context) ([]threadline.Conversation, error)

	// Messages returns the messages of a conversation in creation order.
	Messages(ctx context.Context, id string) ([]threadline.Message, error)

	// Append stores msg at the end of its conversation. A missing ID or
	// timestamp is filled in and the stored message is returned.
	Append(ctx context.Context, msg threadline.Message) (threadline.Message, error)
}
