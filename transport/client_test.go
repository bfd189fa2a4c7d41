package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/auth"
	"github.com/spetersoncode/threadline/internal/retry"
)

func TestClient_RunRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultRunPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithTokens(auth.Static("secret")))
	msgs := ToWireMessages([]threadline.Message{threadline.NewUserMessage("42", "hi")})
	body, err := c.Run(context.Background(), NewRunInput("run-1", "42", msgs, nil))
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n\n", string(data))

	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "42", got["thread_id"])
	assert.Equal(t, []any{}, got["tools"])
	assert.Equal(t, []any{}, got["context"])
	assert.Equal(t, map[string]any{}, got["state"])
	assert.Equal(t, map[string]any{}, got["forwarded_props"])

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "hi", first["content"])
	assert.NotEmpty(t, first["id"])
}

func TestClient_DeferredResultsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/custom/deferred", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, WithDeferredPath("/custom/deferred"))
	in := NewDeferredInput(NewRunInput("run-1", "7", nil, nil),
		DeferredResult{ToolCallID: "t1", Approval: true},
		DeferredResult{ToolCallID: "t2", Approval: false, Message: "Rejected"},
	)
	body, err := c.DeferredResults(context.Background(), in)
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, []any{}, got["messages"])
	results := got["deferred_results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, map[string]any{"tool_call_id": "t1", "approval": true}, results[0])
	assert.Equal(t, map[string]any{"tool_call_id": "t2", "approval": false, "message": "Rejected"}, results[1])
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such agent", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Run(context.Background(), NewRunInput("r", "1", nil, nil))
	require.Error(t, err)

	var se *threadline.HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "no such agent", se.Body)
	assert.False(t, threadline.IsTransient(err))
}

func TestClient_Unauthorized(t *testing.T) {
	t.Run("reauthenticates and resends once", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
		}))
		defer srv.Close()

		tokens := auth.NewJWTSource("stale", auth.WithRefresh(func(context.Context) (string, error) {
			return "fresh", nil
		}))
		body, err := New(srv.URL, WithTokens(tokens)).Run(context.Background(), NewRunInput("r", "1", nil, nil))
		require.NoError(t, err)
		body.Close()
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("static token surfaces the 401", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := New(srv.URL, WithTokens(auth.Static("bad"))).Run(context.Background(), NewRunInput("r", "1", nil, nil))
		assert.True(t, threadline.IsUnauthorized(err))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	body, err := New(srv.URL, WithRetry(cfg)).Run(context.Background(), NewRunInput("r", "1", nil, nil))
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DefaultDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Run(context.Background(), NewRunInput("r", "1", nil, nil))
	require.Error(t, err)
	assert.True(t, threadline.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Run(context.Background(), NewRunInput("r", "1", nil, nil))
	var te *threadline.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "request", te.Op)
}

func TestWireMessages(t *testing.T) {
	in := []threadline.Message{
		{ID: "m1", Role: threadline.RoleUser, Content: "hi"},
		{Role: threadline.RoleAssistant, Content: "Hi there"},
	}
	out := ToWireMessages(in)
	require.Len(t, out, 2)
	assert.Equal(t, "m1", out[0].ID)
	assert.Equal(t, "user", out[0].Role)
	require.NotNil(t, out[1].Content)
	assert.Equal(t, "Hi there", *out[1].Content)
	assert.NotEmpty(t, out[1].ID)

	content := "hello"
	back := FromWireMessage("9", events.Message{ID: "x", Role: "assistant", Content: &content})
	assert.Equal(t, threadline.Message{ID: "x", ConversationID: "9", Role: threadline.RoleAssistant, Content: "hello"}, back)

	back = FromWireMessage("9", events.Message{ID: "y", Role: "system"})
	assert.Equal(t, threadline.RoleUser, back.Role)
	assert.Empty(t, back.Content)
}
