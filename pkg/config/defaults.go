package config

const (
	defaultFlowTarget = "http://localhost:8089/chat"
	defaultSessionID  = "1-1"
	defaultLabel      = "roles"

	defaultChatRole = "assistant"

	defaultRequestTimeoutSecs = 30
	defaultStreamTimeoutSecs  = 300

	defaultEventStreamBroker = "localhost:9092"
	defaultEventStreamTopic  = "loom.turns"

	defaultReplayListen  = ":8089"
	defaultReplayScript  = "replay.sse"
	defaultReplayDelayMs = 25
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			FlowTarget: defaultFlowTarget,
			SessionID:  defaultSessionID,
			Label:      defaultLabel,
		},
		Chat: ChatConfig{
			Role: defaultChatRole,
		},
		Stream: StreamConfig{
			RequestTimeoutSecs: defaultRequestTimeoutSecs,
			StreamTimeoutSecs:  defaultStreamTimeoutSecs,
		},
		EventStream: EventStreamConfig{
			Enabled: false,
			Brokers: []string{defaultEventStreamBroker},
			Topic:   defaultEventStreamTopic,
		},
		Replay: ReplayConfig{
			Listen:  defaultReplayListen,
			Script:  defaultReplayScript,
			DelayMs: defaultReplayDelayMs,
		},
	}
}
