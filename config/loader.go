package config

// loader.go - configuration loading through viper.
//
// Precedence order (highest wins):
//   1. CLI flags  (bound by cmd/, see FlagKeys)
//   2. Environment variables  (CONNPROBE_PROBE_TIMEOUT, ...)
//   3. Config file  (connprobe.yaml)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps command-line flag names to config keys.  Flags absent
// from the set passed to Load are skipped.
var FlagKeys = map[string]string{
	"timeout":             "probe.timeout",
	"ping-driver":         "probe.ping_driver",
	"local-port-strategy": "probe.local_port_strategy",
	"listener-source":     "probe.listener_source",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"topology":            "topology_file",
	"redis":               "redis.addr",
	"addr":                "server.addr",
}

// Load reads configuration.  With an explicit path the file must exist;
// otherwise connprobe.yaml is looked up in the working directory and
// $HOME/.config/connprobe and is optional.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("connprobe")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "connprobe"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that environment variables are
// picked up for all of them.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("topology_file", d.TopologyFile)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("probe.timeout", d.Probe.Timeout)
	v.SetDefault("probe.ping_driver", d.Probe.PingDriver)
	v.SetDefault("probe.ping_binary", d.Probe.PingBinary)
	v.SetDefault("probe.ping_privileged", d.Probe.PingPrivileged)
	v.SetDefault("probe.local_port_strategy", d.Probe.LocalPortStrategy)
	v.SetDefault("probe.listener_source", d.Probe.ListenerSource)
	v.SetDefault("probe.netstat_binary", d.Probe.NetstatBinary)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel_prefix", d.Redis.ChannelPrefix)
	v.SetDefault("redis.publish_timeout", d.Redis.PublishTimeout)
}
