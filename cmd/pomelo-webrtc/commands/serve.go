package commands

import (
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pomelo-net/webrtc-plugin/config"
	"github.com/pomelo-net/webrtc-plugin/logger"
	"github.com/pomelo-net/webrtc-plugin/plugin"
)

var (
	servePort     int
	serveChannels int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge against the built-in stub host",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8443, "signaling port")
	serveCmd.Flags().IntVar(&serveChannels, "channels", 2, "application channel count")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.LogJSON); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("runner")

	stub := newStubHost(serveChannels)

	ctx, err := plugin.Load(stub, cfg)
	if err != nil {
		return err
	}
	defer plugin.Unload(ctx)

	address, err := netip.ParseAddrPort(fmt.Sprintf("0.0.0.0:%d", servePort))
	if err != nil {
		return err
	}

	native := &stubSocket{port: servePort}
	stub.callbacks.OnSocketListening(native, address)
	log.Infow("bridge serving", "port", servePort, "channels", serveChannels)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Infow("shutting down")
	stub.callbacks.OnSocketStopped(native)
	stub.drain()
	return nil
}
