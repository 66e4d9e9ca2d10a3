// Package sse provides the framing and event-extraction half of the flow
// service's SSE (Server-Sent Events) ingestion pipeline: a chunk-fed line
// framer plus a data-field extractor. It is purpose-built for consuming a
// streaming HTTP response body delivered in arbitrarily-sized byte chunks.
//
// The package does not interpret payloads; that is the envelope package's
// job. The only write-side helper is FormatData, used by the replay server.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Framer reassembles a byte stream delivered in arbitrary chunks into
// complete logical lines. It retains any trailing partial line between Feed
// calls, so callers may split the stream anywhere (mid-line, mid-rune, or
// one byte at a time) and still observe the same line sequence.
//
// A Framer is owned by exactly one stream session and is not safe for
// concurrent use.
type Framer struct {
	buf []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to the retained buffer and returns every complete line
// now available, in order, without their line terminators. The segment after
// the last terminator (which may be empty) is retained, not emitted: it may
// be the prefix of a line whose remainder has not yet arrived.
//
// Universal newlines are recognized: "\n", "\r\n" and a lone "\r" each end a
// line. A "\r" that is the final buffered byte is retained until the next
// Feed call disambiguates a "\r\n" pair split across chunks.
//
// Newline bytes never occur inside a multi-byte UTF-8 sequence, so a rune
// split across chunks always sits in the retained tail and is completed by a
// later Feed. Emitted lines are therefore never truncated mid-character.
func (f *Framer) Feed(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	start := 0

	for i := 0; i < len(f.buf); i++ {
		switch f.buf[i] {
		case '\n':
			lines = append(lines, string(f.buf[start:i]))
			start = i + 1

		case '\r':
			if i == len(f.buf)-1 {
				// Possibly the first half of a split "\r\n"; wait for
				// the next chunk.
				break
			}
			lines = append(lines, string(f.buf[start:i]))
			if f.buf[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}

	// Truncate the buffer to only the unconsumed tail. No fully-processed
	// line survives a framing pass.
	f.buf = append(f.buf[:0], f.buf[start:]...)

	return lines
}

// Pending reports how many bytes are buffered awaiting a line terminator.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset discards any buffered partial line.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
