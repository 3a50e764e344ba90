// Package sse decodes event-stream response bodies.
//
// # Overview
//
// The transport hands over bytes in chunks of any size. Nothing lines up
// with chunk boundaries: a frame, a line, a CRLF pair or a single UTF-8
// character may be split. Decoder buffers until a frame is complete and
// only then returns it.
//
// # Wire Format
//
//	event: token
//	data: {"token":"Hel"}
//	id: 42
//
// A blank line terminates the frame. Multiple data lines are joined with
// "\n". Lines starting with ":" are comments. Unknown fields are ignored.
//
// # Usage
//
//	dec := sse.NewDecoder(logger)
//	for {
//	    n, err := body.Read(buf)
//	    for _, f := range dec.Feed(buf[:n]) {
//	        handle(f)
//	    }
//	    if err != nil {
//	        dec.Flush() // drops an unterminated trailing frame
//	        break
//	    }
//	}
package sse
