package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent loom configuration stored as config.toml
// in the .loom/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Chat        ChatConfig        `toml:"chat"`
	Stream      StreamConfig      `toml:"stream"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Replay      ReplayConfig      `toml:"replay"`
}

// ClientConfig holds settings for CLI commands that connect to the flow
// service (e.g. loom chat). FlowTarget is a full URL (scheme + host + port +
// path).
type ClientConfig struct {
	FlowTarget string `toml:"flow_target,omitempty"`
	SessionID  string `toml:"session_id,omitempty"`
	Label      string `toml:"label,omitempty"`
}

// ChatConfig holds chat-specific settings.
type ChatConfig struct {
	Role   string `toml:"role,omitempty"`
	Render bool   `toml:"render,omitempty"`
}

// StreamConfig holds the streaming timeouts, in seconds.
type StreamConfig struct {
	RequestTimeoutSecs uint `toml:"request_timeout_secs,omitempty"`
	StreamTimeoutSecs  uint `toml:"stream_timeout_secs,omitempty"`
}

// EventStreamConfig holds turn-event publishing settings.
type EventStreamConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// ReplayConfig holds settings for the replay dev server.
type ReplayConfig struct {
	Listen  string `toml:"listen,omitempty"`
	Script  string `toml:"script,omitempty"`
	DelayMs uint   `toml:"delay_ms,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.flow_target": {
		get: func(c *Config) string { return c.Client.FlowTarget },
		set: func(c *Config, v string) error { c.Client.FlowTarget = v; return nil },
	},
	"client.session_id": {
		get: func(c *Config) string { return c.Client.SessionID },
		set: func(c *Config, v string) error { c.Client.SessionID = v; return nil },
	},
	"client.label": {
		get: func(c *Config) string { return c.Client.Label },
		set: func(c *Config, v string) error { c.Client.Label = v; return nil },
	},
	"chat.role": {
		get: func(c *Config) string { return c.Chat.Role },
		set: func(c *Config, v string) error { c.Chat.Role = v; return nil },
	},
	"chat.render": {
		get: func(c *Config) string { return strconv.FormatBool(c.Chat.Render) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for chat.render: %w", err)
			}
			c.Chat.Render = b
			return nil
		},
	},
	"stream.request_timeout_secs": {
		get: func(c *Config) string { return formatUint(c.Stream.RequestTimeoutSecs) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for stream.request_timeout_secs: %w", err)
			}
			c.Stream.RequestTimeoutSecs = uint(n)
			return nil
		},
	},
	"stream.stream_timeout_secs": {
		get: func(c *Config) string { return formatUint(c.Stream.StreamTimeoutSecs) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for stream.stream_timeout_secs: %w", err)
			}
			c.Stream.StreamTimeoutSecs = uint(n)
			return nil
		},
	},
	"eventstream.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.EventStream.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for eventstream.enabled: %w", err)
			}
			c.EventStream.Enabled = b
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = splitBrokers(v)
			return nil
		},
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"replay.listen": {
		get: func(c *Config) string { return c.Replay.Listen },
		set: func(c *Config, v string) error { c.Replay.Listen = v; return nil },
	},
	"replay.script": {
		get: func(c *Config) string { return c.Replay.Script },
		set: func(c *Config, v string) error { c.Replay.Script = v; return nil },
	},
	"replay.delay_ms": {
		get: func(c *Config) string { return formatUint(c.Replay.DelayMs) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for replay.delay_ms: %w", err)
			}
			c.Replay.DelayMs = uint(n)
			return nil
		},
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

// splitBrokers parses a comma separated broker list, trimming whitespace and
// dropping empty entries.
func splitBrokers(v string) []string {
	parts := strings.Split(v, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
