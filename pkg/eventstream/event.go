// Package eventstream defines transport-neutral events describing finished
// streaming turns, plus the Publisher interface backends implement.
package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a streaming turn finishes
	// cleanly.
	EventTypeTurnCompleted = "loom.turn.completed"
)

// TurnCompletedEvent is the payload published when one streaming chat turn
// completes.
type TurnCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Turn          TurnSummary `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	SessionID string `json:"session_id"`
	Target    string `json:"target"`
}

// TurnSummary aggregates the turn as observed by the consumer: the full
// reply is reassembled from the ordered fragment stream, never by the
// ingestion core itself.
type TurnSummary struct {
	Prompt        string `json:"prompt"`
	Reply         string `json:"reply"`
	FragmentCount int    `json:"fragment_count"`
	DurationMs    int64  `json:"duration_ms"`
}
