// Package loomcmder
package loomcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/loomworksco/loom/cmd/loom/chat"
	configcmder "github.com/loomworksco/loom/cmd/loom/config"
	replaycmder "github.com/loomworksco/loom/cmd/loom/replay"
	versioncmder "github.com/loomworksco/loom/cmd/version"
)

const loomLongDesc string = `Loom is a streaming chat client for flow-orchestrated LLM backends.

Talk to a flow service using:
  loom chat            Start an interactive streaming chat session
  loom replay          Run a local dev server that replays scripted streams
  loom config          Manage persistent configuration`

const loomShortDesc string = "Loom - streaming flow chat client"

func NewLoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loom",
		Short: loomShortDesc,
		Long:  loomLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .loom/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
