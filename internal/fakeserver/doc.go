// Package fakeserver simulates the chat backend for tests and local demos.
//
// POST to the chat path streams one turn: session_start, message_received,
// processing_start, thinking, optional heartbeats, then the echoed reply as
// token frames and message_complete. A message containing "search" adds a
// tool_call and tool_result for the search tool; one containing "fail"
// ends the turn with an error frame. DELETE on the session path removes a
// session and answers 404 for unknown ids.
package fakeserver
