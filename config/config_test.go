package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	perr "connprobe/internal/errors"
)

// isolate runs the test in an empty directory with an empty HOME so no
// stray connprobe.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Probe.Timeout != DefaultProbeTimeout {
		t.Errorf("timeout = %v, want %v", cfg.Probe.Timeout, DefaultProbeTimeout)
	}
	if cfg.Probe.LocalPortStrategy != StrategyInspect {
		t.Errorf("strategy = %q", cfg.Probe.LocalPortStrategy)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("unexpected config file %q", cfg.ConfigFile)
	}
}

func TestLoad_FileEnvFlagPrecedence(t *testing.T) {
	dir := isolate(t)
	doc := `
probe:
  timeout: 5s
  ping_driver: native
  local_port_strategy: bind
redis:
  addr: 127.0.0.1:6379
log:
  level: info
`
	if err := os.WriteFile(filepath.Join(dir, "connprobe.yaml"), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONNPROBE_PROBE_PING_DRIVER", "exec")
	t.Setenv("CONNPROBE_LOG_LEVEL", "debug")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	flags.Duration("timeout", 0, "")
	if err := flags.Parse([]string{"--log-level=error"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"file value", cfg.Probe.LocalPortStrategy, StrategyBind},
		{"file duration", cfg.Probe.Timeout, 5 * time.Second},
		{"env beats file", cfg.Probe.PingDriver, PingDriverExec},
		{"flag beats env", cfg.Log.Level, "error"},
		{"default kept", cfg.Redis.ChannelPrefix, DefaultChannelPrefix},
		{"redis enabled", cfg.Redis.Enabled(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if !strings.HasSuffix(cfg.ConfigFile, "connprobe.yaml") {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_InvalidValueIsConfigError(t *testing.T) {
	isolate(t)
	t.Setenv("CONNPROBE_PROBE_LOCAL_PORT_STRATEGY", "guess")

	_, err := Load("", nil)
	var ce *perr.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError, got %v", err)
	}
	if ce.Field != "probe.local_port_strategy" {
		t.Errorf("field = %q", ce.Field)
	}
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages with hints.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"zero timeout", func(c *Config) { c.Probe.Timeout = 0 }, "hint: use a duration"},
		{"bad driver", func(c *Config) { c.Probe.PingDriver = "raw" }, "one of: exec, native"},
		{"bad source", func(c *Config) { c.Probe.ListenerSource = "ss" }, "probe.listener_source=ss"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad gin mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"redis without timeout", func(c *Config) {
			c.Redis.Addr = "localhost:6379"
			c.Redis.PublishTimeout = 0
		}, "redis.publish_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestValidate_LogLevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "DEBUG"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
