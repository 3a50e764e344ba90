// Package client is the public facade for a streamed chat conversation.
//
// # Overview
//
// A Client owns one conversation. Each Send posts a user message to the
// chat endpoint and reads the text/event-stream response until the server
// ends the turn with message_complete or error. Frames are decoded
// incrementally, mapped to typed events, and folded into the conversation
// state machine in arrival order.
//
// # Turns
//
// Only one turn runs at a time. Send blocks until the turn is terminal and
// returns:
//
//   - nil when the server completed the turn
//   - *TurnError when the server sent an error event
//   - *TransportError when the request, the status, or the stream failed
//   - ErrCanceled when Cancel, ClearHistory, Disconnect, or Close ended it
//
// Transport failures are recorded as if the server had sent an error
// event, so State().Error is set and the partial response is discarded.
//
// # Observing State
//
// Subscribe returns a channel of State snapshots. A snapshot is published
// after every change. Slow subscribers may miss intermediate snapshots but
// always receive the latest one.
//
//	states, subID := c.Subscribe(ctx)
//	defer c.Unsubscribe(subID)
//	for s := range states {
//	    render(s.CurrentResponse)
//	}
//
// # Archive
//
// When archive.enabled is set, finished messages are written to a local
// SQLite database keyed by session id. ResumeFromArchive reloads one.
//
// # Usage
//
//	c, err := client.New(cfg, client.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.Send(ctx, "Hi", nil); err != nil {
//	    return err
//	}
package client
