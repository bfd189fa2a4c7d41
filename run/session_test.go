package run

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/threadline/protocol"
)

func decode(t *testing.T, frame string) protocol.Event {
	t.Helper()
	r := protocol.Decode(frame)
	require.Equal(t, protocol.KindEvent, r.Kind)
	return r.Event
}

func TestSession_Lifecycle(t *testing.T) {
	s := New("42")
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, "42", s.ThreadID)
	assert.NotEmpty(t, s.RunID)

	require.NoError(t, s.Start())
	assert.Equal(t, Active, s.State())
	assert.ErrorIs(t, s.Start(), ErrNotIdle)

	assert.True(t, s.Complete())
	assert.Equal(t, Completed, s.State())

	// Sticky terminal state.
	assert.False(t, s.Fail(errors.New("late")))
	assert.False(t, s.Supersede())
	assert.Equal(t, Completed, s.State())
}

func TestSession_UniqueRunIDs(t *testing.T) {
	assert.NotEqual(t, New("1").RunID, New("1").RunID)
}

func TestSession_Accumulation(t *testing.T) {
	s := New("1")
	require.NoError(t, s.Start())

	for _, d := range []string{"Hel", "lo", " world"} {
		step := s.Apply(decode(t, `data: {"type":"TEXT_MESSAGE_CONTENT","delta":"`+d+`"}`))
		assert.Equal(t, d, step.Delta)
		assert.False(t, step.ToolCall)
	}

	_, ok := s.Final()
	assert.False(t, ok, "no final text before completion")

	require.True(t, s.Complete())
	text, ok := s.Final()
	require.True(t, ok)
	assert.Equal(t, "Hello world", text)
}

func TestSession_DeltaFieldAliases(t *testing.T) {
	s := New("1")
	require.NoError(t, s.Start())
	s.Apply(decode(t, `data: {"type":"TEXT_MESSAGE_CONTENT","content":"a"}`))
	s.Apply(decode(t, `data: {"type":"TEXT_MESSAGE_CONTENT","text":"b"}`))
	s.Apply(decode(t, `data: {"type":"TEXT_MESSAGE_CONTENT","delta":"","content":"c"}`))
	assert.Equal(t, "abc", s.Text())
}

func TestSession_OnlyTextContentMutatesText(t *testing.T) {
	s := New("1")
	require.NoError(t, s.Start())

	s.Apply(decode(t, `data: {"type":"TEXT_MESSAGE_START","messageId":"m1","role":"assistant"}`))
	s.Apply(decode(t, `data: {"type":"RUN_STARTED","delta":"nope"}`))
	step := s.Apply(decode(t, `data: {"type":"TOOL_CALL_ARGS","toolCallId":"t1","delta":"{}"}`))
	assert.True(t, step.ToolCall)
	s.Apply(decode(t, `data: not json`))

	assert.Equal(t, "", s.Text())
}

func TestSession_ToolCallDispatch(t *testing.T) {
	s := New("1")
	require.NoError(t, s.Start())

	assert.True(t, s.Apply(decode(t, `data: {"type":"TOOL_CALL_START","toolCallId":"t1","toolCallName":"x"}`)).ToolCall)
	assert.True(t, s.Apply(decode(t, `data: {"type":"custom","tool_call_id":"t2"}`)).ToolCall)
	assert.False(t, s.Apply(decode(t, `data: {"type":"STEP_STARTED"}`)).ToolCall)
}

func TestSession_IgnoresEventsWhenNotActive(t *testing.T) {
	ev := decode(t, `data: {"type":"TEXT_MESSAGE_CONTENT","delta":"x"}`)

	s := New("1")
	assert.Equal(t, Step{}, s.Apply(ev), "idle")

	require.NoError(t, s.Start())
	require.True(t, s.Supersede())
	assert.Equal(t, Step{}, s.Apply(ev), "superseded")
	assert.Equal(t, "", s.Text())
}

func TestSession_ErroredDiscardsPartialText(t *testing.T) {
	s := New("1")
	require.NoError(t, s.Start())
	s.Apply(decode(t, `data: {"type":"TEXT_MESSAGE_CONTENT","delta":"partial"}`))

	boom := errors.New("reset")
	require.True(t, s.Fail(boom))
	assert.Equal(t, Errored, s.State())
	assert.ErrorIs(t, s.Err(), boom)

	_, ok := s.Final()
	assert.False(t, ok)
}

func TestSession_SupersededNeverYieldsText(t *testing.T) {
	s := New("1")
	require.NoError(t, s.Start())
	s.Apply(decode(t, `data: {"type":"TEXT_MESSAGE_CONTENT","delta":"stale"}`))
	require.True(t, s.Supersede())
	assert.False(t, s.Complete())

	_, ok := s.Final()
	assert.False(t, ok)
}

func TestSession_EmptyCompletionYieldsNothing(t *testing.T) {
	s := New("1")
	require.NoError(t, s.Start())
	require.True(t, s.Complete())
	_, ok := s.Final()
	assert.False(t, ok)
}

func TestSession_ConcurrentSupersedeAndComplete(t *testing.T) {
	for range 100 {
		s := New("1")
		require.NoError(t, s.Start())

		var wg sync.WaitGroup
		var completed, superseded bool
		wg.Add(2)
		go func() { defer wg.Done(); completed = s.Complete() }()
		go func() { defer wg.Done(); superseded = s.Supersede() }()
		wg.Wait()

		assert.True(t, completed != superseded, "exactly one terminal transition wins")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "superseded", Superseded.String())
	assert.True(t, Errored.Terminal())
	assert.False(t, Active.Terminal())
}
