package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/cyberinferno/screenhub/client"
	"github.com/cyberinferno/screenhub/config"
	"github.com/cyberinferno/screenhub/framestore"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/provider"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

func newLogger(cfg *config.Config, service string) (logger.Logger, error) {
	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.Log.File.Path != "" {
		return logger.NewFileLogger(service, cfg.Log.File, level)
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return logger.NewZerologLogger(zl, service, level), nil
}

// newFrameStore builds the configured store. A redis store is pinged so a
// wrong address fails at startup.
func newFrameStore(ctx context.Context, cfg config.FramesConfig) (framestore.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}

		return framestore.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.TTL), rdb.Close, nil

	default:
		return framestore.NewMemoryStore(cfg.TTL, time.Minute), func() error { return nil }, nil
	}
}

func newProvider(cfg config.ProviderConfig, log logger.Logger) provider.Provider {
	var p provider.Provider = provider.Noop{}
	switch cfg.Kind {
	case config.ProviderExec:
		p = provider.NewExec(cfg.Commands, cfg.KeyMap)
	case config.ProviderRecorder:
		p = &provider.Recorder{OnCall: func(c provider.Call) {
			log.Info("dry run",
				logger.Field{Key: "op", Value: string(c.Op)},
				logger.Field{Key: "x", Value: c.X},
				logger.Field{Key: "y", Value: c.Y},
				logger.Field{Key: "button", Value: c.Button},
				logger.Field{Key: "key", Value: c.Key},
			)
		}}
	}

	if cfg.CaptureMaxAge > 0 {
		p = provider.WithCoalescedCapture(p, cfg.CaptureMaxAge)
	}

	return p
}

func clientConfig(cfg config.ClientConfig) client.Config {
	c := client.DefaultConfig(cfg.Hub)
	c.Token = cfg.Token
	c.ClientID = cfg.ClientID
	c.Role = cfg.Role
	c.AutoReconnect = cfg.AutoReconnect
	c.ReconnectInterval = cfg.ReconnectInterval
	c.MaxFrameSize = cfg.MaxFrameSize
	c.AllowPlaintext = cfg.AllowPlaintext
	if cfg.DialTimeout > 0 {
		c.ConnectionTimeout = cfg.DialTimeout
	}

	if cfg.TLS {
		c.TLS = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         cfg.ServerName,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}

	return c
}
