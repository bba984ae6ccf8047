// Package config loads the screenhub YAML configuration. Values may use
// ${VAR} or ${VAR:default} placeholders, resolved from the environment after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
	"github.com/cyberinferno/screenhub/provider"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TokenEnv is consulted when no token is configured.
const TokenEnv = "SCREENHUB_TOKEN"

// Frame store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Provider kinds.
const (
	ProviderNoop = "noop"
	ProviderExec = "exec"
	// ProviderRecorder logs input calls without performing them.
	ProviderRecorder = "recorder"
)

type (
	Config struct {
		Hub       HubConfig       `yaml:"hub"`
		Dashboard DashboardConfig `yaml:"dashboard"`
		Metrics   MetricsConfig   `yaml:"metrics"`
		Frames    FramesConfig    `yaml:"frames"`
		Provider  ProviderConfig  `yaml:"provider"`
		Log       LogConfig       `yaml:"log"`
		Client    ClientConfig    `yaml:"client"`
	}

	HubConfig struct {
		Listen           string        `yaml:"listen"`
		Token            string        `yaml:"token"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		ProviderTimeout  time.Duration `yaml:"provider_timeout"`
		MaxFrameSize     uint32        `yaml:"max_frame_size"`
		HistorySize      int           `yaml:"history_size"`
		FrameID          string        `yaml:"frame_id"`
		RequireTLS       bool          `yaml:"require_tls"`
		TLS              TLSConfig     `yaml:"tls"`
		Lockout          LockoutConfig `yaml:"lockout"`
	}

	TLSConfig struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	}

	LockoutConfig struct {
		MaxFailures int           `yaml:"max_failures"`
		Window      time.Duration `yaml:"window"`
	}

	DashboardConfig struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	}

	MetricsConfig struct {
		Enabled   bool   `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
	}

	FramesConfig struct {
		Backend string        `yaml:"backend"`
		TTL     time.Duration `yaml:"ttl"`
		Redis   RedisConfig   `yaml:"redis"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	ProviderConfig struct {
		Kind          string            `yaml:"kind"`
		Commands      provider.Commands `yaml:"commands"`
		KeyMap        map[string]string `yaml:"key_map"`
		CaptureMaxAge time.Duration     `yaml:"capture_max_age"`
	}

	LogConfig struct {
		Level string            `yaml:"level"`
		File  logger.FileConfig `yaml:"file"`
	}

	ClientConfig struct {
		Hub                string        `yaml:"hub"`
		Token              string        `yaml:"token"`
		ClientID           string        `yaml:"client_id"`
		Role               protocol.Role `yaml:"role"`
		Interval           time.Duration `yaml:"interval"`
		DialTimeout        time.Duration `yaml:"dial_timeout"`
		RequestTimeout     time.Duration `yaml:"request_timeout"`
		AutoReconnect      bool          `yaml:"auto_reconnect"`
		ReconnectInterval  time.Duration `yaml:"reconnect_interval"`
		TLS                bool          `yaml:"tls"`
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
		AllowPlaintext     bool          `yaml:"allow_plaintext"`
		ServerName         string        `yaml:"server_name"`
		MaxFrameSize       uint32        `yaml:"max_frame_size"`
	}
)

// Default returns the configuration used for anything a file leaves unset.
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			Listen:           ":5000",
			HandshakeTimeout: 10 * time.Second,
			ProviderTimeout:  10 * time.Second,
			MaxFrameSize:     64 << 20,
			HistorySize:      20,
			FrameID:          "hub",
			Lockout:          LockoutConfig{MaxFailures: 5, Window: 5 * time.Minute},
		},
		Dashboard: DashboardConfig{Enabled: true, Listen: ":8080"},
		Metrics:   MetricsConfig{Enabled: true, Namespace: "screenhub"},
		Frames: FramesConfig{
			Backend: BackendMemory,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Provider: ProviderConfig{Kind: ProviderNoop, Commands: provider.DefaultCommands()},
		Log: LogConfig{
			Level: "info",
			File:  logger.FileConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		},
		Client: ClientConfig{
			Hub:               "localhost:5000",
			Role:              protocol.RoleSource,
			Interval:          2 * time.Second,
			DialTimeout:       10 * time.Second,
			RequestTimeout:    10 * time.Second,
			AutoReconnect:     true,
			ReconnectInterval: 5 * time.Second,
			MaxFrameSize:      64 << 20,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults. A
// .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(resolveEnv(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.Hub.Token == "" {
		cfg.Hub.Token = os.Getenv(TokenEnv)
	}
	if cfg.Client.Token == "" {
		cfg.Client.Token = cfg.Hub.Token
	}

	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// resolveEnv replaces ${VAR} and ${VAR:default} placeholders.
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		m := envPattern.FindSubmatch(match)
		if value, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(value)
		}
		return m[2]
	})
}

// ValidateHub checks the settings the serve command depends on.
func (c *Config) ValidateHub() error {
	var errs []error

	if c.Hub.Listen == "" {
		errs = append(errs, errors.New("hub.listen is required"))
	}
	if c.Hub.Token == "" {
		errs = append(errs, fmt.Errorf("hub.token is required (or set %s)", TokenEnv))
	}
	if c.Hub.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("hub.handshake_timeout must be positive"))
	}
	if c.Hub.MaxFrameSize == 0 {
		errs = append(errs, errors.New("hub.max_frame_size must be positive"))
	}
	if c.Hub.HistorySize < 1 {
		errs = append(errs, errors.New("hub.history_size must be at least 1"))
	}
	if (c.Hub.TLS.CertFile == "") != (c.Hub.TLS.KeyFile == "") {
		errs = append(errs, errors.New("hub.tls needs both cert_file and key_file"))
	}
	if c.Hub.RequireTLS && c.Hub.TLS.CertFile == "" {
		errs = append(errs, errors.New("hub.require_tls is set but no certificate is configured"))
	}
	if c.Hub.Lockout.MaxFailures < 0 {
		errs = append(errs, errors.New("hub.lockout.max_failures cannot be negative"))
	}
	if c.Dashboard.Enabled && c.Dashboard.Listen == "" {
		errs = append(errs, errors.New("dashboard.listen is required when the dashboard is enabled"))
	}

	switch c.Frames.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Frames.Redis.Addr == "" {
			errs = append(errs, errors.New("frames.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("frames.backend %q is not one of memory, redis", c.Frames.Backend))
	}

	if err := c.ValidateProvider(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateClient checks the settings the share and control commands depend on.
func (c *Config) ValidateClient() error {
	var errs []error

	if c.Client.Hub == "" {
		errs = append(errs, errors.New("client.hub is required"))
	}
	if c.Client.Token == "" {
		errs = append(errs, fmt.Errorf("client.token is required (or set %s)", TokenEnv))
	}
	switch c.Client.Role {
	case protocol.RoleSource, protocol.RoleController:
	default:
		errs = append(errs, fmt.Errorf("client.role %q is not one of source, controller", c.Client.Role))
	}
	if c.Client.Interval <= 0 {
		errs = append(errs, errors.New("client.interval must be positive"))
	}
	if c.Client.AutoReconnect && c.Client.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("client.reconnect_interval must be positive"))
	}
	if c.Client.AllowPlaintext && !c.Client.TLS {
		errs = append(errs, errors.New("client.allow_plaintext only applies when client.tls is set"))
	}

	return errors.Join(errs...)
}

// ValidateProvider checks the provider section on its own, for commands
// that capture without running a hub.
func (c *Config) ValidateProvider() error {
	switch c.Provider.Kind {
	case ProviderNoop, ProviderExec, ProviderRecorder:
		return nil
	default:
		return fmt.Errorf("provider.kind %q is not one of noop, exec, recorder", c.Provider.Kind)
	}
}
