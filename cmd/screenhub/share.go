package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/screenhub/client"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Stream this machine's screen to a hub",
	Long: `Connect to the hub as a screen source and push a capture every
client.interval. The connection is re-established when it drops and
client.auto_reconnect is set.`,
	Args: cobra.NoArgs,
	RunE: runShare,
}

func init() {
	shareCmd.Flags().String("hub", "", "override client.hub (host:port)")
	shareCmd.Flags().String("id", "", "override client.client_id")
	shareCmd.Flags().Duration("interval", 0, "override client.interval")
}

func runShare(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("hub"); v != "" {
		cfg.Client.Hub = v
	}
	if v, _ := cmd.Flags().GetString("id"); v != "" {
		cfg.Client.ClientID = v
	}
	if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
		cfg.Client.Interval = v
	}
	cfg.Client.Role = protocol.RoleSource

	if err := errors.Join(cfg.ValidateClient(), cfg.ValidateProvider()); err != nil {
		return err
	}

	log, err := newLogger(cfg, appName+"-share")
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(clientConfig(cfg.Client), log)
	defer c.Close()

	c.OnConnectionState(func(ev client.ConnectionStateEvent) {
		log.Info("connection state changed", logger.Field{Key: "state", Value: ev.State.String()})
	})

	if err := c.Connect(ctx); err != nil {
		if !cfg.Client.AutoReconnect || errors.Is(err, client.ErrRejected) {
			return err
		}
		log.Warn("hub not reachable yet, retrying in background", logger.Err(err))
	}

	streamer := client.NewStreamer(c, newProvider(cfg.Provider, log), cfg.Client.Interval, log)
	return streamer.Run(ctx)
}
