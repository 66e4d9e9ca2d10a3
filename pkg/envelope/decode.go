package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeError reports that a single event payload failed schema validation:
// malformed JSON, a missing msgType tag, or an unknown tag value.
//
// It is non-fatal by contract. The stream may interleave heartbeat or
// partial-schema events the client does not understand; callers log the
// error, drop the event and keep reading.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding envelope payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// errMissingMsgType is raised when a payload parses as JSON but carries no
// msgType tag at all.
var errMissingMsgType = errors.New("missing msgType tag")

// DecodePayload parses one extracted SSE data payload into an Envelope.
//
// Surrounding whitespace (including newlines) is trimmed first; a payload
// that is empty after trimming is not an event and returns (nil, nil). Any
// schema failure returns a *DecodeError and no envelope.
func DecodePayload(payload string) (*Envelope, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, &DecodeError{Payload: payload, Err: err}
	}

	if env.MsgType == "" {
		return nil, &DecodeError{Payload: payload, Err: errMissingMsgType}
	}

	return &env, nil
}
