// Package stream maps event-stream frames to typed events.
//
// # Event Types
//
//   - session_start: {session_id}
//   - message_received: {message, timestamp}
//   - processing_start: {}
//   - thinking: {description} or {step}
//   - tool_call: {tool_name, parameters}
//   - tool_result: {tool_name, result}
//   - token: {token}
//   - message_complete: {timestamp}
//   - error: {error}
//   - heartbeat: {}
//
// Anything else, and any frame whose payload is not a JSON object or lacks
// a required field, maps to Unrecognized. Decode problems are logged and
// absorbed so a single bad frame never ends a healthy stream.
//
// Adding a server event kind means one new variant here, one case in
// Mapper.Map, and one arm in the conversation state machine.
package stream
