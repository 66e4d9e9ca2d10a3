package sse

import "strings"

// dataPrefix marks the only SSE field this client consumes. Exactly these
// five bytes are stripped from a matching line; a leading space in the
// remainder is left for the envelope decoder's whitespace trim.
const dataPrefix = "data:"

// ExtractData returns the event payload carried by one framed line.
//
// Rules, in order:
//   - an empty line is an event-boundary marker and carries no payload
//   - a line beginning with ":" is a comment or heartbeat and carries no
//     payload
//   - a line beginning with "data:" carries the remainder as its payload
//   - any other field line ("event:", "id:", "retry:", or anything
//     unrecognized) is intentionally ignored, never an error
//
// Every line counts as processed whether or not it yields a payload: the
// framer has already consumed it from the stream buffer.
func ExtractData(line string) (string, bool) {
	if line == "" {
		return "", false
	}

	if strings.HasPrefix(line, ":") {
		return "", false
	}

	if strings.HasPrefix(line, dataPrefix) {
		return line[len(dataPrefix):], true
	}

	return "", false
}

// FormatData renders a payload as one complete data event, terminated by the
// blank line that marks the event boundary. Write-side counterpart of
// ExtractData, used by the replay server.
func FormatData(payload string) string {
	return dataPrefix + payload + "\n\n"
}
