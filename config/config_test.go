package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyberinferno/screenhub/protocol"
	"github.com/cyberinferno/screenhub/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screenhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("SH_A", "va")
	out := string(resolveEnv([]byte("a: ${SH_A:da}\nb: ${SH_B:db}\nc: ${SH_C}\n")))

	assert.Contains(t, out, "a: va")
	assert.Contains(t, out, "b: db")
	assert.Contains(t, out, "c: \n")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Hub.Listen)
	assert.Equal(t, 10*time.Second, cfg.Hub.HandshakeTimeout)
	assert.Equal(t, uint32(64<<20), cfg.Hub.MaxFrameSize)
	assert.Equal(t, 20, cfg.Hub.HistorySize)
	assert.Equal(t, "from-env", cfg.Hub.Token)
	assert.Equal(t, "from-env", cfg.Client.Token)
	assert.Equal(t, BackendMemory, cfg.Frames.Backend)
	assert.NotEmpty(t, cfg.Provider.Commands.Capture)
	assert.NoError(t, cfg.ValidateHub())
	assert.NoError(t, cfg.ValidateClient())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("SH_TOKEN", "s3cret")
	path := writeConfig(t, `
hub:
  listen: 127.0.0.1:7000
  token: ${SH_TOKEN:unset}
  handshake_timeout: 3s
  max_frame_size: 1048576
  history_size: 50
  lockout:
    max_failures: 0
frames:
  backend: redis
  ttl: 1m
  redis:
    addr: ${SH_REDIS:redis:6379}
    db: 2
provider:
  kind: exec
  commands:
    capture: [grim, "-"]
log:
  level: debug
  file:
    path: /tmp/screenhub.log
client:
  client_id: laptop-1
  role: controller
  interval: 500ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Hub.Listen)
	assert.Equal(t, "s3cret", cfg.Hub.Token)
	assert.Equal(t, "s3cret", cfg.Client.Token)
	assert.Equal(t, 3*time.Second, cfg.Hub.HandshakeTimeout)
	assert.Equal(t, uint32(1<<20), cfg.Hub.MaxFrameSize)
	assert.Equal(t, 50, cfg.Hub.HistorySize)
	assert.Equal(t, 0, cfg.Hub.Lockout.MaxFailures)
	assert.Equal(t, 5*time.Minute, cfg.Hub.Lockout.Window, "unset fields keep defaults")
	assert.Equal(t, BackendRedis, cfg.Frames.Backend)
	assert.Equal(t, time.Minute, cfg.Frames.TTL)
	assert.Equal(t, "redis:6379", cfg.Frames.Redis.Addr)
	assert.Equal(t, 2, cfg.Frames.Redis.DB)
	assert.Equal(t, []string{"grim", "-"}, cfg.Provider.Commands.Capture)
	assert.NotEmpty(t, cfg.Provider.Commands.MoveTo)
	assert.Equal(t, "/tmp/screenhub.log", cfg.Log.File.Path)
	assert.Equal(t, 100, cfg.Log.File.MaxSizeMB)
	assert.Equal(t, protocol.RoleController, cfg.Client.Role)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.Interval)

	assert.NoError(t, cfg.ValidateHub())
	assert.NoError(t, cfg.ValidateClient())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "hub: [not, a, map]"))
	assert.Error(t, err)
}

func TestValidateHub(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.Hub.Token = "" }, "hub.token"},
		{"require tls without cert", func(c *Config) { c.Hub.RequireTLS = true }, "require_tls"},
		{"half tls pair", func(c *Config) { c.Hub.TLS.CertFile = "hub.crt" }, "both cert_file and key_file"},
		{"bad backend", func(c *Config) { c.Frames.Backend = "disk" }, "frames.backend"},
		{"bad provider", func(c *Config) { c.Provider.Kind = "magic" }, "provider.kind"},
		{"zero history", func(c *Config) { c.Hub.HistorySize = 0 }, "history_size"},
		{"negative lockout", func(c *Config) { c.Hub.Lockout.MaxFailures = -1 }, "max_failures"},
		{"dashboard without listen", func(c *Config) { c.Dashboard.Listen = "" }, "dashboard.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Hub.Token = "t"
			tt.mutate(cfg)

			err := cfg.ValidateHub()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("require tls with cert", func(t *testing.T) {
		cfg := Default()
		cfg.Hub.Token = "t"
		cfg.Hub.RequireTLS = true
		cfg.Hub.TLS = TLSConfig{CertFile: "hub.crt", KeyFile: "hub.key"}
		assert.NoError(t, cfg.ValidateHub())
	})

	t.Run("recorder provider", func(t *testing.T) {
		cfg := Default()
		cfg.Hub.Token = "t"
		cfg.Provider.Kind = ProviderRecorder
		assert.NoError(t, cfg.ValidateHub())
	})
}

func TestValidateClient(t *testing.T) {
	cfg := Default()
	cfg.Client.Token = "t"
	require.NoError(t, cfg.ValidateClient())

	cfg.Client.Role = "admin"
	cfg.Client.AllowPlaintext = true
	cfg.Client.Interval = 0

	err := cfg.ValidateClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client.role")
	assert.Contains(t, err.Error(), "allow_plaintext")
	assert.Contains(t, err.Error(), "client.interval")
}

func TestLoad_SampleConfig(t *testing.T) {
	t.Setenv("SCREENHUB_LISTEN", ":6000")
	t.Setenv("SCREENHUB_TOKEN", "from-env")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load("../configs/screenhub.yaml")
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Hub.Listen)
	assert.Equal(t, "from-env", cfg.Hub.Token)
	assert.Equal(t, "from-env", cfg.Client.Token)
	assert.Equal(t, "redis:6379", cfg.Frames.Redis.Addr)
	assert.Equal(t, provider.DefaultCommands(), cfg.Provider.Commands)
	assert.NoError(t, cfg.ValidateHub())
}
