package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultProbeTimeout bounds every individual check.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultServerAddr is where `connprobe serve` listens.
	DefaultServerAddr = ":8088"

	// DefaultShutdownTimeout is how long serve waits for in-flight runs.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultChannelPrefix prefixes per-run Redis channels.
	DefaultChannelPrefix = "connprobe"

	// DefaultPublishTimeout bounds a single Redis publish.
	DefaultPublishTimeout = 2 * time.Second

	// EnvPrefix is prepended to every environment variable.
	EnvPrefix = "CONNPROBE"
)

// Accepted values for enumerated settings.
const (
	PingDriverExec   = "exec"
	PingDriverNative = "native"

	StrategyInspect = "inspect"
	StrategyBind    = "bind"

	SourceNative  = "native"
	SourceNetstat = "netstat"
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "warn", Format: "text"},
		Probe: ProbeConfig{
			Timeout:           DefaultProbeTimeout,
			PingDriver:        PingDriverExec,
			PingBinary:        "",
			LocalPortStrategy: StrategyInspect,
			ListenerSource:    SourceNative,
			NetstatBinary:     "netstat",
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			Mode:            "release",
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Redis: RedisConfig{
			ChannelPrefix:  DefaultChannelPrefix,
			PublishTimeout: DefaultPublishTimeout,
		},
	}
}
