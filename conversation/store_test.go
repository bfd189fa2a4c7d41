package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/threadline"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newSQLiteStore(t) },
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			testStore(t, open(t))
		})
	}
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		c, err := s.Create(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.False(t, c.CreatedAt.IsZero())

		got, err := s.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		_, err := s.Get(ctx, "9999")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Messages(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Append(ctx, threadline.NewUserMessage("9999", "hi"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("messages keep creation order", func(t *testing.T) {
		c, err := s.Create(ctx)
		require.NoError(t, err)

		first, err := s.Append(ctx, threadline.NewUserMessage(c.ID, "hi"))
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)

		_, err = s.Append(ctx, threadline.NewAssistantMessage(c.ID, "Hi there"))
		require.NoError(t, err)

		msgs, err := s.Messages(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, first.ID, msgs[0].ID)
		assert.Equal(t, threadline.RoleUser, msgs[0].Role)
		assert.Equal(t, "hi", msgs[0].Content)
		assert.Equal(t, threadline.RoleAssistant, msgs[1].Role)
		assert.Equal(t, "Hi there", msgs[1].Content)
		assert.Equal(t, c.ID, msgs[1].ConversationID)
		assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))
	})

	t.Run("empty conversation has no messages", func(t *testing.T) {
		c, err := s.Create(ctx)
		require.NoError(t, err)
		msgs, err := s.Messages(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("list newest first", func(t *testing.T) {
		a, err := s.Create(ctx)
		require.NoError(t, err)
		b, err := s.Create(ctx)
		require.NoError(t, err)

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(list), 2)
		assert.Equal(t, b.ID, list[0].ID)
		assert.Equal(t, a.ID, list[1].ID)
	})
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "threadline.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	c, err := s.Create(ctx)
	require.NoError(t, err)
	stamp := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = s.Append(ctx, threadline.Message{ID: "m1", ConversationID: c.ID, Role: threadline.RoleUser, Content: "hello", Timestamp: stamp})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.Messages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, stamp.Equal(msgs[0].Timestamp))
}

func TestSQLiteStore_Closed(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Create(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
}
