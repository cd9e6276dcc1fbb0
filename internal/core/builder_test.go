package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"connprobe/config"
	"connprobe/internal/probe"
	"connprobe/internal/topology"
	"connprobe/util"
)

// TestBuild_Defaults verifies the default configuration wires the exec
// pinger and the inspect strategy over the native listener source.
func TestBuild_Defaults(t *testing.T) {
	cfg := config.Default()
	o, err := Build(cfg, topology.MustLoad(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	ping, ok := o.Checkers[topology.KindPing].(*probe.Ping)
	if !ok {
		t.Fatalf("ping checker is %T", o.Checkers[topology.KindPing])
	}
	if _, ok := ping.Pinger.(*probe.ExecPinger); !ok {
		t.Errorf("expected *probe.ExecPinger, got %T", ping.Pinger)
	}
	if ping.Timeout != config.DefaultProbeTimeout {
		t.Errorf("ping timeout = %v", ping.Timeout)
	}

	local, ok := o.Checkers[topology.KindLocalPort].(*probe.LocalPort)
	if !ok {
		t.Fatalf("local port checker is %T", o.Checkers[topology.KindLocalPort])
	}
	if local.Strategy != probe.StrategyInspect {
		t.Errorf("strategy = %q", local.Strategy)
	}
	if _, ok := local.Source.(probe.NativeSource); !ok {
		t.Errorf("expected probe.NativeSource, got %T", local.Source)
	}

	if _, ok := o.Checkers[topology.KindTCP].(*probe.TCP); !ok {
		t.Errorf("tcp checker is %T", o.Checkers[topology.KindTCP])
	}
}

// TestBuild_Alternatives verifies the native pinger, bind strategy and
// netstat source are selectable.
func TestBuild_Alternatives(t *testing.T) {
	cfg := config.Default()
	cfg.Probe.PingDriver = config.PingDriverNative
	cfg.Probe.PingPrivileged = true
	cfg.Probe.LocalPortStrategy = config.StrategyBind
	cfg.Probe.ListenerSource = config.SourceNetstat
	cfg.Probe.NetstatBinary = "/usr/sbin/netstat"

	o, err := Build(cfg, topology.MustLoad(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	pinger, ok := o.Checkers[topology.KindPing].(*probe.Ping).Pinger.(*probe.NativePinger)
	if !ok || !pinger.Privileged {
		t.Errorf("expected privileged *probe.NativePinger, got %#v", pinger)
	}
	local := o.Checkers[topology.KindLocalPort].(*probe.LocalPort)
	if local.Strategy != probe.StrategyBind {
		t.Errorf("strategy = %q", local.Strategy)
	}
	if src, ok := local.Source.(probe.NetstatSource); !ok || src.Binary != "/usr/sbin/netstat" {
		t.Errorf("unexpected source %#v", local.Source)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		nilReg bool
	}{
		{"nil registry", func(*config.Config) {}, true},
		{"bad driver", func(c *config.Config) { c.Probe.PingDriver = "raw" }, false},
		{"bad strategy", func(c *config.Config) { c.Probe.LocalPortStrategy = "guess" }, false},
		{"bad source", func(c *config.Config) { c.Probe.ListenerSource = "ss" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			reg := topology.MustLoad()
			if tt.nilReg {
				reg = nil
			}
			if _, err := Build(cfg, reg, nil, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	cfg := config.Default()
	reg, err := LoadRegistry(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(reg.IDs()) != 5 {
		t.Errorf("built-in registry has %d modes", len(reg.IDs()))
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	doc := "modes:\n  - id: solo\n    title: Solo\n    fields: [{key: p, default: \"22\"}]\n    sections: [{title: Solo local, checks: [{kind: local_port, port: p}]}]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.TopologyFile = path
	reg, err = LoadRegistry(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ids := reg.IDs(); len(ids) != 1 || ids[0] != "solo" {
		t.Errorf("ids = %v", ids)
	}
}

// TestBuild_LogsPingCommand verifies the configured ping command line
// reaches the debug log.
func TestBuild_LogsPingCommand(t *testing.T) {
	var buf bytes.Buffer
	logger := util.NewLogger(&buf, util.LogOptions{Level: "debug", Format: "json"})

	cfg := config.Default()
	cfg.Probe.PingBinary = "/opt/tools/ping"
	if _, err := Build(cfg, topology.MustLoad(), nil, logger); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "/opt/tools/ping -") {
		t.Errorf("debug log lacks the ping command:\n%s", buf.String())
	}
}
