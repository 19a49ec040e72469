package main

import (
	"os"

	"github.com/pomelo-net/webrtc-plugin/cmd/pomelo-webrtc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
