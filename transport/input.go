package transport

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// RunInput is the body of a run request. It mirrors the AG-UI
// RunAgentInput; collection fields are always sent, empty when unused.
type RunInput struct {
	RunID          string           `json:"run_id"`
	ThreadID       string           `json:"thread_id"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools"`
	State          any              `json:"state"`
	Context        []any            `json:"context"`
	ForwardedProps any              `json:"forwarded_props"`
}

// NewRunInput builds a run request with empty state, context and
// forwarded props.
func NewRunInput(runID, threadID string, messages []events.Message, tools []any) RunInput {
	if messages == nil {
		messages = []events.Message{}
	}
	if tools == nil {
		tools = []any{}
	}
	return RunInput{
		RunID:          runID,
		ThreadID:       threadID,
		Messages:       messages,
		Tools:          tools,
		State:          map[string]any{},
		Context:        []any{},
		ForwardedProps: map[string]any{},
	}
}

// DeferredResult is the decision for one deferred tool call.
type DeferredResult struct {
	ToolCallID string `json:"tool_call_id"`
	Approval   bool   `json:"approval"`
	Message    string `json:"message,omitempty"`
}

// DeferredInput is the body of a deferred-results request: the run
// input of the originating run plus the tool-call decisions.
type DeferredInput struct {
	RunInput
	DeferredResults []DeferredResult `json:"deferred_results"`
}

// NewDeferredInput wraps results for the run described by in.
func NewDeferredInput(in RunInput, results ...DeferredResult) DeferredInput {
	if results == nil {
		results = []DeferredResult{}
	}
	return DeferredInput{RunInput: in, DeferredResults: results}
}
