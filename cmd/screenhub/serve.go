package main

import (
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/screenhub/dashboard"
	"github.com/cyberinferno/screenhub/hub"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/metrics"
	"github.com/cyberinferno/screenhub/registry"
	"github.com/cyberinferno/screenhub/tcpserver"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub and the web dashboard",
	Long: `Run the hub listener and, when enabled, the dashboard. Both stop
gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateHub(); err != nil {
		return err
	}

	log, err := newLogger(cfg, appName)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newFrameStore(ctx, cfg.Frames)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("closing frame store", logger.Err(err))
		}
	}()

	reg := registry.New(cfg.Hub.HistorySize, store, log.With(logger.Field{Key: "component", Value: "registry"}))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	var tlsConfig *tls.Config
	if cfg.Hub.TLS.CertFile != "" {
		tlsConfig, err = tcpserver.LoadTLSConfig(cfg.Hub.TLS.CertFile, cfg.Hub.TLS.KeyFile)
		if err != nil {
			return err
		}
	} else {
		log.Warn("hub listener is plaintext; configure hub.tls to encrypt sessions")
	}

	h := hub.New(hub.Options{
		Addr:             cfg.Hub.Listen,
		TLSConfig:        tlsConfig,
		Token:            cfg.Hub.Token,
		HandshakeTimeout: cfg.Hub.HandshakeTimeout,
		ProviderTimeout:  cfg.Hub.ProviderTimeout,
		MaxFrameSize:     cfg.Hub.MaxFrameSize,
		FrameID:          cfg.Hub.FrameID,
		MaxAuthFailures:  cfg.Hub.Lockout.MaxFailures,
		LockoutWindow:    cfg.Hub.Lockout.Window,
	}, reg, newProvider(cfg.Provider, log), m, log.With(logger.Field{Key: "component", Value: "hub"}))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Serve(ctx)
	})

	if cfg.Dashboard.Enabled {
		dash := dashboard.New(cfg.Dashboard.Listen, reg, m, log.With(logger.Field{Key: "component", Value: "dashboard"}))
		g.Go(func() error {
			return dash.Serve(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("screenhub stopped with error", logger.Err(err))
		return err
	}

	log.Info("screenhub stopped")
	return nil
}
