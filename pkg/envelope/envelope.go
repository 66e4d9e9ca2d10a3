// Package envelope defines the decoded event model for the flow service's
// SSE stream: a discriminated message type plus a loosely-typed data bag
// that supports arbitrary nested JSON through the Value union.
package envelope

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the kind of event an Envelope carries.
type MessageType string

const (
	// MessageTypeFlow reports flow-level orchestration progress.
	MessageTypeFlow MessageType = "flow"

	// MessageTypeNode reports per-node execution progress.
	MessageTypeNode MessageType = "node"

	// MessageTypeLLMStream carries an incremental content fragment of the
	// assistant's reply.
	MessageTypeLLMStream MessageType = "llmStream"
)

// UnmarshalJSON validates the tag strictly. An unknown message type fails
// the decode of the whole envelope rather than silently defaulting.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch MessageType(s) {
	case MessageTypeFlow, MessageTypeNode, MessageTypeLLMStream:
		*t = MessageType(s)
		return nil
	}

	return fmt.Errorf("unknown message type %q", s)
}

// Envelope is one decoded logical event from the stream.
type Envelope struct {
	MsgType MessageType `json:"msgType"`
	Data    EventData   `json:"data"`
}

// EventData is the envelope's data bag. Every field is optional; pointer
// fields distinguish an absent field from a present zero value, so an
// envelope round-trips without inventing fields the server never sent.
type EventData struct {
	Status      *string          `json:"status,omitempty"`
	IsEnd       *bool            `json:"isEnd,omitempty"`
	Content     *string          `json:"content,omitempty"`
	IsThinking  *bool            `json:"isThinking,omitempty"`
	NodeID      *string          `json:"nodeId,omitempty"`
	NodeType    *string          `json:"nodeType,omitempty"`
	DurationMS  *int64           `json:"durationMs,omitempty"`
	Result      map[string]Value `json:"result,omitempty"`
	NextNodeIDs []string         `json:"nextNodeIds,omitempty"`
}

// ContentFragment returns the data bag's content field when it is present
// and non-empty. An absent or empty content field yields no fragment.
func (d *EventData) ContentFragment() (string, bool) {
	if d.Content == nil || *d.Content == "" {
		return "", false
	}
	return *d.Content, true
}
