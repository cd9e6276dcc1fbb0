// Package config defines the runtime configuration for connprobe and
// loads it from defaults, an optional YAML file, CONNPROBE_* environment
// variables and command-line flags.
package config

import (
	"strings"
	"time"

	perr "connprobe/internal/errors"
)

// Config holds every tuneable for a connprobe process.
type Config struct {
	// ConfigFile is the file the values were read from, empty when
	// none was found.
	ConfigFile string `mapstructure:"-"`

	// TopologyFile replaces the built-in mode table when set.
	TopologyFile string `mapstructure:"topology_file"`

	Log    LogConfig    `mapstructure:"log"`
	Probe  ProbeConfig  `mapstructure:"probe"`
	Server ServerConfig `mapstructure:"server"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// ── Sections ─────────────────────────────────────────────────────────

// LogConfig controls diagnostic logging.  Progress lines are not logs
// and are unaffected.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// ProbeConfig tunes the check primitives.
type ProbeConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	PingDriver        string        `mapstructure:"ping_driver"` // exec or native
	PingBinary        string        `mapstructure:"ping_binary"`
	PingPrivileged    bool          `mapstructure:"ping_privileged"`
	LocalPortStrategy string        `mapstructure:"local_port_strategy"` // inspect or bind
	ListenerSource    string        `mapstructure:"listener_source"`     // native or netstat
	NetstatBinary     string        `mapstructure:"netstat_binary"`
}

// ServerConfig configures `connprobe serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // gin mode
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig enables publishing progress lines over Redis pub/sub.
// An empty Addr disables it.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ChannelPrefix  string        `mapstructure:"channel_prefix"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Probe.Timeout <= 0 {
		return &perr.ConfigError{
			Field: "probe.timeout", Value: c.Probe.Timeout,
			Message: "must be positive", Hint: "use a duration such as 3s",
		}
	}
	if err := oneOf("probe.ping_driver", c.Probe.PingDriver, PingDriverExec, PingDriverNative); err != nil {
		return err
	}
	if err := oneOf("probe.local_port_strategy", c.Probe.LocalPortStrategy, StrategyInspect, StrategyBind); err != nil {
		return err
	}
	if err := oneOf("probe.listener_source", c.Probe.ListenerSource, SourceNative, SourceNetstat); err != nil {
		return err
	}
	if err := oneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("log.format", c.Log.Format, "text", "json"); err != nil {
		return err
	}
	if err := oneOf("server.mode", c.Server.Mode, "debug", "release", "test"); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return &perr.ConfigError{
			Field: "server.addr", Message: "must not be empty",
			Hint: "use host:port, for example " + DefaultServerAddr,
		}
	}
	if c.Redis.Enabled() && c.Redis.PublishTimeout <= 0 {
		return &perr.ConfigError{
			Field: "redis.publish_timeout", Value: c.Redis.PublishTimeout,
			Message: "must be positive when redis.addr is set",
		}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &perr.ConfigError{
		Field:   field,
		Value:   value,
		Message: "unsupported value",
		Hint:    "one of: " + strings.Join(allowed, ", "),
	}
}
