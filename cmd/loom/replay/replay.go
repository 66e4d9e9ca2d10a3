// Package replaycmder provides the replay command: a local dev server that
// replays a scripted event stream over the flow service wire protocol.
package replaycmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomworksco/loom/pkg/cliui"
	"github.com/loomworksco/loom/pkg/config"
	"github.com/loomworksco/loom/pkg/dotdir"
	"github.com/loomworksco/loom/pkg/logger"
	"github.com/loomworksco/loom/pkg/replay"
)

type replayCommander struct {
	listen  string
	script  string
	delayMs uint
	debug   bool

	logger *zap.Logger
}

const replayLongDesc string = `Run a local development server that replays a scripted event stream.

The script holds one envelope payload per line (blank lines and # comments
are skipped). Every streaming chat request replays the script, one data
event at a time, with a configurable delay between events. The script is
hot-reloaded when it changes on disk, so fixtures can be edited while the
chat client stays connected.

Point the chat client at it with:
  loom chat --target http://localhost:8089/chat

Examples:
  loom replay
  loom replay --script ./fixtures/greeting.sse --delay 50`

const replayShortDesc string = "Replay scripted event streams for local development"

func NewReplayCmd() *cobra.Command {
	cmder := &replayCommander{}

	fs := config.FlagSet{
		config.FlagReplayListen: {
			Name:        "listen",
			Shorthand:   "l",
			ViperKey:    "replay.listen",
			Description: "Listen address for the replay server",
		},
		config.FlagReplayScript: {
			Name:        "script",
			Shorthand:   "s",
			ViperKey:    "replay.script",
			Description: "Path to the replay script",
		},
		config.FlagReplayDelay: {
			Name:        "delay",
			ViperKey:    "replay.delay_ms",
			Description: "Delay between events in milliseconds",
		},
	}
	registryKeys := []string{
		config.FlagReplayListen,
		config.FlagReplayScript,
		config.FlagReplayDelay,
	}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, fs, registryKeys)

			cmder.listen = v.GetString("replay.listen")
			cmder.script = v.GetString("replay.script")
			cmder.delayMs = v.GetUint("replay.delay_ms")

			// A bare filename resolves inside the .loom/ directory, so the
			// default script lives next to the config.
			if cmder.script != "" && !filepath.IsAbs(cmder.script) && filepath.Dir(cmder.script) == "." {
				target, err := dotdir.NewManager().Target(configDir)
				if err != nil {
					return fmt.Errorf("resolving script dir: %w", err)
				}
				cmder.script = filepath.Join(target, cmder.script)
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

	config.AddStringFlag(cmd, fs, config.FlagReplayListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagReplayScript, &cmder.script)
	config.AddUintFlag(cmd, fs, config.FlagReplayDelay, &cmder.delayMs)

	return cmd
}

func (c *replayCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	var server *replay.Server
	err := cliui.Step(os.Stdout, fmt.Sprintf("loading replay script %s", c.script), func() error {
		var serr error
		server, serr = replay.New(replay.Config{
			Listen:     c.listen,
			ScriptPath: c.script,
			Delay:      time.Duration(c.delayMs) * time.Millisecond,
			Logger:     c.logger,
		})
		return serr
	})
	if err != nil {
		return fmt.Errorf("creating replay server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.Run()
	}()
	go func() {
		if err := server.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("shutting down replay server")
		return server.Shutdown()
	case err := <-errCh:
		return err
	}
}
