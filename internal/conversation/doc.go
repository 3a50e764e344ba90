// Package conversation owns the client-side view of a chat conversation.
//
// # Machine
//
// Machine folds typed stream events into state:
//
//	m := conversation.NewMachine(logger)
//	m.Begin()                 // at send time: idle -> awaiting_session
//	step := m.Apply(event)    // one call per decoded event
//	if step.Terminal() { ... }
//
// Phases:
//
//   - idle: no turn outstanding; a send is accepted
//   - awaiting_session: request sent, nothing meaningful received yet
//   - processing: the server is producing the reply
//
// session_start and processing_start move to processing. message_complete
// appends an assistant message carrying the accumulated text, the last
// thinking step, and the tool invocations, then returns to idle. error
// discards the partial turn, records the message, and returns to idle.
// A message_received event appends the user message as echoed by the
// server.
//
// The first session id a machine sees is kept for its lifetime (until
// ClearHistory). A later session_start naming a different id is logged and
// otherwise ignored.
//
// Machine is not goroutine-safe. The client serializes access.
//
// # Transcript
//
// Transcript is the ordered, append-only list of finished messages. Turns
// that fail or are cancelled leave it untouched.
//
// # Snapshots
//
// State is a deep copy of everything an observer needs. StateBroadcaster
// fans snapshots out to subscribers without ever blocking the publisher;
// a slow subscriber may miss intermediate snapshots but always receives
// the newest one.
package conversation
