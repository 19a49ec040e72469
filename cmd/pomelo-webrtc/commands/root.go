// Package commands implements the pomelo-webrtc development runner: a
// standalone process that loads the bridge against an in-process stub host,
// so browser peers can be driven end to end without a full game server.
package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pomelo-webrtc",
	Short:         "WebRTC bridge development runner",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to bridge config file (optional)")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
