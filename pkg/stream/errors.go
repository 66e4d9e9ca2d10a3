package stream

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal session error for the consumer's error sink.
type Kind string

const (
	// KindInvalidRequest means the request could not be constructed, e.g. a
	// malformed target URL. Reported before any connection attempt.
	KindInvalidRequest Kind = "invalid_request"

	// KindEncoding means the request body could not be serialized. Reported
	// before send.
	KindEncoding Kind = "encoding"

	// KindTransport covers connection resets, DNS failures and timeouts.
	// Fatal for the session, reported once.
	KindTransport Kind = "transport"

	// KindHTTPStatus means the upstream answered with a non-2xx status.
	// The body is not read.
	KindHTTPStatus Kind = "http_status"
)

// ErrAlreadyStarted is returned by Start on a session that has already been
// started. Sessions are single-use; the Turns manager creates a fresh one
// per turn.
var ErrAlreadyStarted = errors.New("session already started")

// ErrCancelled is returned by Start on a session that was cancelled before
// it ever dialed.
var ErrCancelled = errors.New("session cancelled")

// StreamError is the single terminal error a session reports through its
// error sink (or returns from Start for pre-connection failures).
//
// Per-event decode failures never appear here: a malformed event is logged,
// dropped and the stream continues.
type StreamError struct {
	Kind   Kind
	Status int // HTTP status code, set for KindHTTPStatus
	Err    error
}

func (e *StreamError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s: upstream returned status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
