package main

import (
	"encoding/json"
	"strings"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"

	"github.com/spetersoncode/threadline/transport"
)

// toolName is the only tool the mock agent calls.
const toolName = "search"

// script is the sequence of AG-UI events answering one request.
type script struct {
	threadID string
	runID    string
	events   []events.Event
}

func newScript(threadID, runID string) *script {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	s := &script{threadID: threadID, runID: runID}
	s.events = append(s.events, events.NewRunStartedEvent(threadID, runID))
	return s
}

// say streams text as one assistant message, a word per frame.
func (s *script) say(text string) *script {
	id := events.GenerateMessageID()
	s.events = append(s.events, events.NewTextMessageStartEvent(id, events.WithRole("assistant")))
	for _, word := range strings.SplitAfter(text, " ") {
		if word != "" {
			s.events = append(s.events, events.NewTextMessageContentEvent(id, word))
		}
	}
	s.events = append(s.events, events.NewTextMessageEndEvent(id))
	return s
}

// callTool announces a deferred tool call. Arguments are sent in two
// fragments.
func (s *script) callTool(query string) *script {
	id := "call_" + uuid.NewString()
	args, _ := json.Marshal(map[string]string{"query": query})
	half := len(args) / 2
	s.events = append(s.events,
		events.NewToolCallStartEvent(id, toolName),
		events.NewToolCallArgsEvent(id, string(args[:half])),
		events.NewToolCallArgsEvent(id, string(args[half:])),
		events.NewToolCallEndEvent(id),
	)
	return s
}

func (s *script) finish() []events.Event {
	return append(s.events, events.NewRunFinishedEvent(s.threadID, s.runID))
}

// respond scripts the answer to a run request.
func respond(in transport.RunInput) []events.Event {
	s := newScript(in.ThreadID, in.RunID)
	text := lastUserText(in)
	lower := strings.ToLower(strings.TrimSpace(text))

	switch {
	case lower == "":
		s.say("Nothing to answer.")
	case lower == "hi" || lower == "hello":
		s.say("Hi there")
	case strings.HasPrefix(lower, "search "):
		s.callTool(strings.TrimSpace(text[len("search "):]))
	default:
		s.say("You said: " + text)
	}
	return s.finish()
}

// resume scripts the answer to a deferred-results request.
func resume(in transport.DeferredInput) []events.Event {
	s := newScript(in.ThreadID, in.RunID)
	for _, r := range in.DeferredResults {
		switch {
		case !r.Approval:
			s.say("Okay, I won't run that.")
		case r.Message != "":
			s.say("Search finished: " + r.Message)
		default:
			s.say("Search finished.")
		}
	}
	return s.finish()
}

func lastUserText(in transport.RunInput) string {
	for i := len(in.Messages) - 1; i >= 0; i-- {
		m := in.Messages[i]
		if m.Role == "user" && m.Content != nil {
			return *m.Content
		}
	}
	return ""
}
