// ABOUTME: Incremental UTF-8 decoder that carries partial runes across chunk boundaries
// ABOUTME: Wraps the x/text UTF-8 transformer so invalid bytes become U+FFFD

package sse

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textBufferSize is the scratch buffer handed to the transformer per pass.
const textBufferSize = 4096

// TextDecoder turns a sequence of byte chunks into text. A multi-byte
// character split across two chunks is held back until its remaining
// bytes arrive, so decoding chunk by chunk yields the same text as
// decoding the concatenation.
type TextDecoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

// NewTextDecoder creates a decoder with no buffered bytes.
func NewTextDecoder() *TextDecoder {
	return &TextDecoder{
		t:   unicode.UTF8.NewDecoder(),
		dst: make([]byte, textBufferSize),
	}
}

// Decode returns the text for every complete character available after
// appending chunk. Trailing bytes of an incomplete character are kept.
func (d *TextDecoder) Decode(chunk []byte) string {
	return d.decode(chunk, false)
}

// Flush decodes whatever is still buffered as if the input had ended.
// An incomplete trailing character becomes U+FFFD. The decoder is reset
// and can be reused.
func (d *TextDecoder) Flush() string {
	s := d.decode(nil, true)
	d.t.Reset()
	return s
}

// Pending reports how many bytes are held back waiting for the rest of a character.
func (d *TextDecoder) Pending() int {
	return len(d.pending)
}

func (d *TextDecoder) decode(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return out.String()
		default:
			// The UTF-8 decoder substitutes rather than fails; keep the
			// rest for the next call so nothing is silently dropped.
			d.pending = append([]byte(nil), src...)
			return out.String()
		}
	}
}
