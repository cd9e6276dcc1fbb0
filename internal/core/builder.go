package core

import (
	"fmt"
	"log/slog"

	"connprobe/config"
	"connprobe/internal/metrics"
	"connprobe/internal/probe"
	"connprobe/internal/topology"
	"connprobe/internal/transport"
)

// Build wires an Orchestrator from the given configuration.  This is
// the single place where config strings become check implementations.
func Build(cfg *config.Config, reg *topology.Registry, m *metrics.Collector, logger *slog.Logger) (*Orchestrator, error) {
	if reg == nil {
		return nil, fmt.Errorf("build: nil topology registry")
	}

	pinger, err := buildPinger(cfg.Probe)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debug("checks configured",
			"ping", fmt.Sprint(pinger),
			"local_port_strategy", cfg.Probe.LocalPortStrategy,
			"listener_source", cfg.Probe.ListenerSource,
			"timeout", cfg.Probe.Timeout)
	}
	local, err := buildLocalPort(cfg.Probe)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		Registry: reg,
		Checkers: map[topology.Kind]probe.Checker{
			topology.KindLocalPort: local,
			topology.KindPing: &probe.Ping{
				Resolver: transport.SystemResolver{},
				Pinger:   pinger,
				Timeout:  cfg.Probe.Timeout,
			},
			topology.KindTCP: &probe.TCP{
				Dialer:  &transport.TCPDialer{Timeout: cfg.Probe.Timeout},
				Timeout: cfg.Probe.Timeout,
			},
		},
		Metrics: m,
		Logger:  logger,
	}, nil
}

// LoadRegistry returns the operator's topology file when configured
// and the built-in table otherwise.
func LoadRegistry(cfg *config.Config) (*topology.Registry, error) {
	if cfg.TopologyFile != "" {
		return topology.LoadFile(cfg.TopologyFile)
	}
	return topology.Load()
}

// ── check builders ───────────────────────────────────────────────────

func buildPinger(pc config.ProbeConfig) (probe.Pinger, error) {
	switch pc.PingDriver {
	case config.PingDriverExec, "":
		return &probe.ExecPinger{Binary: pc.PingBinary}, nil
	case config.PingDriverNative:
		return &probe.NativePinger{Privileged: pc.PingPrivileged}, nil
	}
	return nil, fmt.Errorf("unknown ping driver %q", pc.PingDriver)
}

func buildLocalPort(pc config.ProbeConfig) (*probe.LocalPort, error) {
	strategy, err := probe.ParseStrategy(pc.LocalPortStrategy)
	if err != nil {
		return nil, err
	}

	var src probe.ListenerSource
	switch pc.ListenerSource {
	case config.SourceNative, "":
		src = probe.NativeSource{}
	case config.SourceNetstat:
		src = probe.NetstatSource{Binary: pc.NetstatBinary}
	default:
		return nil, fmt.Errorf("unknown listener source %q", pc.ListenerSource)
	}

	return &probe.LocalPort{Strategy: strategy, Source: src, Timeout: pc.Timeout}, nil
}
