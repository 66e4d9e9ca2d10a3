// Package chatcmder provides the chat command for interactive streaming chat
// against the configured flow service.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomworksco/loom/pkg/cliui"
	"github.com/loomworksco/loom/pkg/config"
	"github.com/loomworksco/loom/pkg/eventstream"
	"github.com/loomworksco/loom/pkg/eventstream/kafka"
	"github.com/loomworksco/loom/pkg/eventstream/nop"
	"github.com/loomworksco/loom/pkg/logger"
	"github.com/loomworksco/loom/pkg/stream"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("flow> ")
)

type chatCommander struct {
	flowTarget string
	sessionID  string
	label      string
	role       string
	render     bool
	debug      bool

	streamCfg eventstreamSettings
	timeouts  timeoutSettings

	logger *zap.Logger
}

type eventstreamSettings struct {
	enabled bool
	brokers []string
	topic   string
}

type timeoutSettings struct {
	request time.Duration
	stream  time.Duration
}

const chatLongDesc string = `Start an interactive streaming chat session against the flow service.

Each prompt is sent as one streaming turn. The reply arrives as a stream of
content fragments and is printed as it is generated. Sending a new prompt
while a reply is still streaming supersedes the previous turn.

Examples:
  loom chat
  loom chat --target http://localhost:8089/chat
  loom chat --render`

const chatShortDesc string = "Interactive streaming chat against the flow service"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	fs := config.FlagSet{
		config.FlagFlowTarget: {
			Name:        "target",
			Shorthand:   "t",
			ViperKey:    "client.flow_target",
			Description: "Flow service streaming chat endpoint URL",
		},
		config.FlagSessionID: {
			Name:        "session",
			ViperKey:    "client.session_id",
			Description: "Conversation session identifier",
		},
		config.FlagLabel: {
			Name:        "label",
			ViperKey:    "client.label",
			Description: "Flow label to route the request to",
		},
		config.FlagChatRole: {
			Name:        "role",
			ViperKey:    "chat.role",
			Description: "System role string sent with every prompt",
		},
		config.FlagChatRender: {
			Name:        "render",
			ViperKey:    "chat.render",
			Description: "Re-render each completed reply as markdown",
		},
	}
	registryKeys := []string{
		config.FlagFlowTarget,
		config.FlagSessionID,
		config.FlagLabel,
		config.FlagChatRole,
		config.FlagChatRender,
	}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, fs, registryKeys)

			cmder.flowTarget = v.GetString("client.flow_target")
			cmder.sessionID = v.GetString("client.session_id")
			cmder.label = v.GetString("client.label")
			cmder.role = v.GetString("chat.role")
			cmder.render = v.GetBool("chat.render")

			cmder.timeouts = timeoutSettings{
				request: time.Duration(v.GetUint("stream.request_timeout_secs")) * time.Second,
				stream:  time.Duration(v.GetUint("stream.stream_timeout_secs")) * time.Second,
			}
			cmder.streamCfg = eventstreamSettings{
				enabled: v.GetBool("eventstream.enabled"),
				brokers: v.GetStringSlice("eventstream.brokers"),
				topic:   v.GetString("eventstream.topic"),
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagFlowTarget, &cmder.flowTarget)
	config.AddStringFlag(cmd, fs, config.FlagSessionID, &cmder.sessionID)
	config.AddStringFlag(cmd, fs, config.FlagLabel, &cmder.label)
	config.AddStringFlag(cmd, fs, config.FlagChatRole, &cmder.role)
	config.AddBoolFlag(cmd, fs, config.FlagChatRender, &cmder.render)

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	publisher, err := c.newPublisher()
	if err != nil {
		return fmt.Errorf("creating turn publisher: %w", err)
	}
	defer func() { _ = publisher.Close() }()

	// A reply can already be on the wire when the user hits Ctrl+C; cancel
	// the in-flight turn before exiting so no output lands after the prompt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reply strings.Builder
	turns := stream.NewTurns(stream.TurnsConfig{
		Stream: stream.Config{
			Target:         c.flowTarget,
			Role:           c.role,
			SessionID:      c.sessionID,
			Label:          c.label,
			RequestTimeout: c.timeouts.request,
			StreamTimeout:  c.timeouts.stream,
			Logger:         c.logger,
			OnFragment: func(text string) {
				fmt.Print(text)
				reply.WriteString(text)
			},
			OnError: func(serr *stream.StreamError) {
				fmt.Fprintf(os.Stderr, "\n  %s %v\n", cliui.FailMark, serr)
			},
		},
		Publisher: publisher,
	})

	go func() {
		<-ctx.Done()
		turns.Cancel()
	}()

	fmt.Println()
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Flow target:"), cliui.ValueStyle.Render(c.flowTarget))
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("Session:"), cliui.ValueStyle.Render(c.sessionID))
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		reply.Reset()
		fmt.Print(assistantPrompt)

		session, err := turns.StartTurn(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n  %s %v\n\n", cliui.FailMark, err)
			continue
		}
		<-session.Done()

		if c.render && session.State() == stream.StateCompleted && reply.Len() > 0 {
			rendered, err := cliui.RenderMarkdown(reply.String())
			if err == nil {
				fmt.Print("\n" + rendered)
			}
		}

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	turns.Cancel()
	fmt.Println()
	return nil
}

// newPublisher wires the turn-event publisher: Kafka when enabled in config,
// otherwise a no-op.
func (c *chatCommander) newPublisher() (eventstream.Publisher, error) {
	if !c.streamCfg.enabled {
		return nop.NewPublisher(), nil
	}

	c.logger.Debug("publishing turn events",
		zap.Strings("brokers", c.streamCfg.brokers),
		zap.String("topic", c.streamCfg.topic),
	)

	return kafka.NewPublisher(kafka.Config{
		Brokers: c.streamCfg.brokers,
		Topic:   c.streamCfg.topic,
	})
}
