package client

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/run"
	"github.com/spetersoncode/threadline/toolcall"
	"github.com/spetersoncode/threadline/transport"
)

// ErrSuperseded is returned by Run.Wait when the run's output was dropped
// because another conversation was selected.
var ErrSuperseded = errors.New("client: run superseded")

// Run is a handle on a run started by Send.
type Run struct {
	sess   *run.Session
	tools  *toolcall.Controller
	input  transport.RunInput
	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger

	// replyID identifies the assistant reply in continuation requests.
	replyID string

	mu  sync.Mutex
	msg *threadline.Message
}

// ID returns the run ID.
func (r *Run) ID() string { return r.sess.RunID }

// Session returns the run's session.
func (r *Run) Session() *run.Session { return r.sess }

// Tools returns the run's tool-call controller.
func (r *Run) Tools() *toolcall.Controller { return r.tools }

// Done is closed when the run has ended and its message, if any, is stored.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel aborts the run. The run ends as errored.
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Wait blocks until the run ends. A completed run returns its assistant
// message, or nil if it produced no text. A failed run returns its error
// and a superseded run returns ErrSuperseded.
func (r *Run) Wait() (*threadline.Message, error) {
	<-r.done
	switch r.sess.State() {
	case run.Errored:
		return nil, r.sess.Err()
	case run.Superseded:
		return nil, ErrSuperseded
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msg, nil
}

// continuationInput returns the run input for a deferred-results request.
// The history is the transcript sent at run start followed by the
// assistant text streamed so far.
func (r *Run) continuationInput() transport.RunInput {
	in := r.input
	text := r.sess.Text()
	if text == "" {
		return in
	}
	reply := threadline.NewAssistantMessage(r.sess.ThreadID, text)
	reply.ID = r.replyID
	in.Messages = append(slices.Clone(in.Messages), transport.ToWireMessage(reply))
	return in
}
