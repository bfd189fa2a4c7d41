// Package threadline is a client engine for agents that speak the AG-UI
// protocol over HTTP streaming.
//
// A backend answers each request with a stream of frames. The engine splits
// the stream into frames ([github.com/spetersoncode/threadline/frame]),
// decodes each frame into an event ([github.com/spetersoncode/threadline/protocol]),
// drives one run session per turn ([github.com/spetersoncode/threadline/run]),
// answers deferred tool calls ([github.com/spetersoncode/threadline/toolcall])
// and reconciles finished replies with a persisted conversation
// ([github.com/spetersoncode/threadline/conversation]).
//
// # Basic Usage
//
//	c, err := client.New(client.Config{BaseURL: "http://localhost:8000"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := c.Create(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	run, err := c.Send(ctx, "hi")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	msg, err := run.Wait()
//
// # Streaming Events
//
// Set [client.Config.Events] to observe a run as it progresses: text deltas,
// every decoded stream event, tool calls awaiting approval and the outcome
// of the run. Events are delivered non-blocking and dropped when the
// channel is full.
//
// # Errors
//
// Errors returned by the engine implement [CategorizedError] where it makes
// sense. Use [IsTransient] to decide whether to retry and [IsUnauthorized]
// to detect a rejected token.
package threadline
