// ABOUTME: Append-only ordered history of finished user and assistant messages
// ABOUTME: Cleared only by an explicit clear-history operation

package conversation

// Transcript is the durable in-memory history for one client.
type Transcript struct {
	messages []Message
}

// Append adds a finished message at the end.
func (t *Transcript) Append(m Message) {
	t.messages = append(t.messages, m)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Last returns the most recent message.
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return cloneMessage(t.messages[len(t.messages)-1]), true
}

// Messages returns a copy of the history.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = cloneMessage(m)
	}
	return out
}

// Clear drops every message.
func (t *Transcript) Clear() {
	t.messages = nil
}
