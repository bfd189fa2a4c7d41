// Package client drives AG-UI runs against an agent backend.
//
// A Client owns the selected conversation and at most one active run. Send
// persists the user's message, opens the run stream and returns a [Run]
// handle while a goroutine processes the stream:
//
//	frames -> events -> session -> tool-call controller
//
// Tool calls announced on the stream are answered with deferred results.
// Each answer opens a continuation stream that goes through the same
// pipeline, so continuations may announce further tool calls. The run
// completes once every stream it opened has ended and no tool call is
// waiting; only then is its text stored as one assistant message.
//
// # Basic Usage
//
//	c, err := client.New(client.Config{
//	    BaseURL: "http://localhost:8000",
//	    Tokens:  auth.Static(os.Getenv("THREADLINE_TOKEN")),
//	})
//	if err != nil {
//	    return err
//	}
//	if _, err := c.Create(ctx); err != nil {
//	    return err
//	}
//
//	r, err := c.Send(ctx, "hi")
//	if err != nil {
//	    return err
//	}
//	msg, err := r.Wait()
//
// # Approvals
//
// With Mode set to toolcall.ModeManual, tool calls wait until Approve or
// Reject is called with their identifier. Pending calls are announced on
// the Events channel as event.ToolCallPending.
//
// # Switching Conversations
//
// Select supersedes a run bound to another conversation. The superseded
// run keeps draining its stream but its text is dropped and it sends no
// further deferred results.
package client
