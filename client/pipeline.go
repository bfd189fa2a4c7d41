package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/event"
	"github.com/spetersoncode/threadline/frame"
	"github.com/spetersoncode/threadline/protocol"
	"github.com/spetersoncode/threadline/run"
	"github.com/spetersoncode/threadline/toolcall"
	"github.com/spetersoncode/threadline/transport"
)

// execute drives a run from its primary stream to its end.
func (c *Client) execute(ctx context.Context, r *Run, body io.ReadCloser) {
	defer r.cancel()

	err := c.pump(ctx, r, body)
	if err == nil {
		err = c.drain(ctx, r)
	}
	if err != nil {
		r.sess.Fail(err)
	}
	r.sess.Complete()
	c.finish(ctx, r)
}

// drain sends queued deferred results and pumps each continuation stream
// until the controller has no work left. Nested failures are reported and
// do not end the run.
func (c *Client) drain(ctx context.Context, r *Run) error {
	for r.sess.Active() {
		task, err := r.tools.Next(ctx)
		switch {
		case errors.Is(err, toolcall.ErrDrained):
			return nil
		case errors.Is(err, toolcall.ErrContinuationLimit):
			r.log.Warn("continuation limit reached, dropping remaining tool calls",
				"issued", r.tools.Issued(),
			)
			return nil
		case err != nil:
			return err
		}
		if !r.sess.Active() {
			return nil
		}

		result := task.Result
		r.log.Info("sending deferred result",
			"tool_call_id", result.ToolCallID,
			"approval", result.Approval,
		)
		c.emit(r, event.Event{
			Type:     event.ToolCallResolved,
			ToolCall: &toolcall.Record{ToolCallID: result.ToolCallID},
			Approved: result.Approval,
		})

		body, err := c.transport.DeferredResults(ctx, transport.NewDeferredInput(r.continuationInput(), result))
		if err == nil {
			err = c.pump(ctx, r, body)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.deferralFailed(r, result.ToolCallID, err)
		}
	}
	return nil
}

func (c *Client) deferralFailed(r *Run, id string, err error) {
	derr := &threadline.DeferralError{ToolCallID: id, Cause: err}
	r.tools.Unmark(id)
	r.log.Warn("deferred result failed", "tool_call_id", id, "error", err)
	c.emit(r, event.Event{Type: event.DeferralFailed, Error: derr})
}

// pump reads one stream to its end, feeding every event through the
// session and the tool-call controller. The terminal marker and a clean
// end of stream both end the stream successfully.
func (c *Client) pump(ctx context.Context, r *Run, body io.ReadCloser) error {
	defer body.Close()

	streamCtx := ctx
	if c.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, c.cfg.StreamTimeout)
		defer cancel()
		stop := context.AfterFunc(streamCtx, func() { body.Close() })
		defer stop()
	}

	start := time.Now()
	reader := frame.NewReader(body)
	count := 0
	for f, err := range reader.Frames() {
		if err != nil {
			if ctxErr := streamCtx.Err(); ctxErr != nil {
				return &threadline.TransportError{Op: "read", Cause: ctxErr}
			}
			return err
		}

		res := protocol.Decode(f)
		switch res.Kind {
		case protocol.KindNone:
			continue
		case protocol.KindTerminal:
			r.log.Debug("stream finished",
				"events", count,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
		if res.Err != nil {
			r.log.Warn("payload is not a JSON object, passing raw event", "error", res.Err)
		}
		count++
		c.dispatch(r, res.Event)
	}

	if n := reader.Discarded(); n > 0 {
		r.log.Warn("discarded undelimited data at end of stream", "bytes", n)
	}
	r.log.Debug("stream ended without terminal marker",
		"events", count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// dispatch applies one event. Events arriving after the run left the
// active state have no effect.
func (c *Client) dispatch(r *Run, ev protocol.Event) {
	if r.sess.State() != run.Active {
		return
	}
	r.log.Debug("event received", "event_type", ev.Type)

	step := r.sess.Apply(ev)
	switch {
	case step.Delta != "":
		c.emit(r, event.Event{Type: event.MessageDelta, Delta: step.Delta})
	case step.ToolCall:
		if rec, ok := r.tools.Handle(ev); ok {
			c.emit(r, event.Event{Type: event.ToolCallSeen, ToolCall: rec})
		}
	case !ev.Is(events.EventTypeTextMessageContent):
		c.emit(r, event.Event{Type: event.StreamEvent, Stream: &ev})
	}
}

// finish clears the run's tool-call state, stores its message and
// publishes the outcome.
func (c *Client) finish(ctx context.Context, r *Run) {
	defer close(r.done)
	r.tools.Clear()

	msg, ok, err := c.manager.FinishRun(context.WithoutCancel(ctx), r.sess)
	if err != nil {
		r.log.Error("failed to store assistant message", "error", err)
	}
	if ok {
		r.mu.Lock()
		r.msg = &msg
		r.mu.Unlock()
	}

	elapsed := r.sess.Elapsed()
	switch r.sess.State() {
	case run.Completed:
		e := event.Event{Type: event.RunEnd}
		if ok {
			e.Message = &msg
		}
		c.emit(r, e)
		r.log.Info("run completed",
			"duration_ms", elapsed.Milliseconds(),
			"continuations", r.tools.Issued(),
			"stored", ok,
		)
	case run.Errored:
		c.emit(r, event.Event{Type: event.RunError, Error: r.sess.Err()})
		r.log.Error("run failed",
			"duration_ms", elapsed.Milliseconds(),
			"error", r.sess.Err(),
		)
	case run.Superseded:
		c.emit(r, event.Event{Type: event.RunSuperseded})
		r.log.Info("run output discarded after conversation switch",
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}
