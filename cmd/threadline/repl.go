package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/client"
	"github.com/spetersoncode/threadline/event"
)

const helpText = `Commands:
  /new                  start a conversation
  /list                 list conversations
  /switch <id>          select a conversation
  /reload               reload the selected conversation
  /history              print the transcript
  /pending              list tool calls awaiting approval
  /approve <id> [text]  approve a tool call, optionally with its result
  /reject <id>          reject a tool call
  /cancel               cancel the active run
  /help                 show this help
  /quit                 exit
Anything else is sent as a message.`

// repl reads commands and messages and renders run events.
type repl struct {
	client *client.Client

	mu  sync.Mutex
	out io.Writer
}

func newREPL(c *client.Client, out io.Writer) *repl {
	return &repl{client: c, out: out}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// run processes lines from in until EOF or /quit.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if quit := r.handle(ctx, scanner.Text()); quit {
			return nil
		}
	}
	return scanner.Err()
}

// handle executes one input line and reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/quit", "/exit":
		if run := r.client.Current(); run != nil {
			run.Cancel()
		}
		return true
	case "/help":
		r.printf("%s\n", helpText)
	case "/new":
		conv, err := r.client.Create(ctx)
		if err != nil {
			r.printf("error: %v\n", err)
			return false
		}
		r.printf("conversation %s\n", conv.ID)
	case "/list":
		convs, err := r.client.List(ctx)
		if err != nil {
			r.printf("error: %v\n", err)
			return false
		}
		current := r.client.Conversations().Current()
		for _, conv := range convs {
			marker := " "
			if conv.ID == current {
				marker = "*"
			}
			r.printf("%s %s  %s\n", marker, conv.ID, conv.CreatedAt.Format("2006-01-02 15:04"))
		}
	case "/switch":
		if len(args) != 1 {
			r.printf("usage: /switch <id>\n")
			return false
		}
		if err := r.client.Select(ctx, args[0]); err != nil {
			r.printf("error: %v\n", err)
			return false
		}
		r.printHistory()
	case "/reload":
		if err := r.client.Reload(ctx, true); err != nil {
			r.printf("error: %v\n", err)
			return false
		}
		r.printHistory()
	case "/history":
		r.printHistory()
	case "/pending":
		pending := r.client.Pending()
		if len(pending) == 0 {
			r.printf("no pending tool calls\n")
		}
		for _, rec := range pending {
			r.printf("%s  %s(%s)\n", rec.ToolCallID, rec.ToolName, rec.ArgsRaw)
		}
	case "/approve":
		if len(args) < 1 {
			r.printf("usage: /approve <id> [text]\n")
			return false
		}
		if err := r.client.Approve(args[0], strings.Join(args[1:], " ")); err != nil {
			r.printf("error: %v\n", err)
		}
	case "/reject":
		if len(args) != 1 {
			r.printf("usage: /reject <id>\n")
			return false
		}
		if err := r.client.Reject(args[0]); err != nil {
			r.printf("error: %v\n", err)
		}
	case "/cancel":
		if run := r.client.Current(); run != nil {
			run.Cancel()
		}
	default:
		r.printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	if _, err := r.client.Send(ctx, text); err != nil {
		if errors.Is(err, threadline.ErrNoConversation) {
			r.printf("no conversation selected (use /new or /switch)\n")
			return
		}
		r.printf("error: %v\n", err)
	}
}

func (r *repl) printHistory() {
	for _, m := range r.client.Transcript() {
		r.printf("%s: %s\n", m.Role, m.Content)
	}
}

// render prints events until ch is closed or ctx is done.
func (r *repl) render(ctx context.Context, ch <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			r.renderEvent(e)
		}
	}
}

func (r *repl) renderEvent(e event.Event) {
	switch e.Type {
	case event.RunStart:
		r.printf("assistant: ")
	case event.MessageDelta:
		r.printf("%s", e.Delta)
	case event.RunEnd:
		r.printf("\n")
	case event.RunError:
		r.printf("\nrun failed: %v\n", e.Error)
	case event.RunSuperseded:
		r.printf("\n(run superseded)\n")
	case event.ToolCallPending:
		r.printf("\ntool call %s wants to run %s. /approve %s [result] or /reject %s\n",
			e.ToolCall.ToolCallID, e.ToolCall.ToolName, e.ToolCall.ToolCallID, e.ToolCall.ToolCallID)
	case event.ToolCallResolved:
		verdict := "rejected"
		if e.Approved {
			verdict = "approved"
		}
		r.printf("tool call %s %s\n", e.ToolCall.ToolCallID, verdict)
	case event.DeferralFailed:
		r.printf("\ndeferred results failed: %v\n", e.Error)
	}
}
