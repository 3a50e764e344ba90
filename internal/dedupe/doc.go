// Package dedupe tracks recently seen keys for a bounded time.
//
// The chat client feeds it the id field of incoming event-stream frames
// when stream.dedupe_ids is enabled; a frame whose id is still in the
// window is dropped before it reaches the state machine.
//
//	w := dedupe.NewWindow(5*time.Minute, 1024)
//	defer w.Close()
//	if w.Seen(frame.ID) {
//	    continue // replayed
//	}
package dedupe
