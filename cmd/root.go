// Package cmd wires up the connprobe command tree.
package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"connprobe/config"
	"connprobe/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X connprobe/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected subcommand.
func Execute(ctx context.Context, args []string) error {
	root := newRootCommand(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// rootOptions are the persistent flags every subcommand shares.
type rootOptions struct {
	configFile string
	verbose    int
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "connprobe",
		Short: "Connectivity checks between the components of a deployment",
		Long: `connprobe verifies that the components of a deployment can reach each
other: local listening ports, ICMP reachability and TCP connects, run in
a fixed order per role and narrated line by line.`,
		Example: `  connprobe modes
  connprobe run das --param mchost=mc.internal
  connprobe run kapplets -p dbhost=db.internal -p dbport=3307 --ip-family 4
  connprobe run rs --save-log ./logs
  connprobe serve --addr :8088`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("connprobe {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Config file (default ./connprobe.yaml or ~/.config/connprobe/connprobe.yaml)")
	pf.CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	pf.String("log-level", "warn", "Log level: debug, info, warn or error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("topology", "", "Topology file replacing the built-in modes")

	root.AddCommand(
		newRunCommand(opts),
		newModesCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// load reads the configuration with cmd's flags applied and builds the
// diagnostic logger on cmd's error stream.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger := util.NewLogger(cmd.ErrOrStderr(), util.LogOptions{
		Level:  util.VerbosityLevel(o.verbose, cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	if cfg.ConfigFile != "" {
		logger.Debug("config loaded", "file", cfg.ConfigFile)
	}
	return cfg, logger, nil
}

// ── shared flags ─────────────────────────────────────────────────────

// addProbeFlags registers the check tuning flags.  Their values reach
// the config through config.FlagKeys.
func addProbeFlags(f *pflag.FlagSet) {
	f.Duration("timeout", config.DefaultProbeTimeout, "Per-check timeout")
	f.String("ping-driver", config.PingDriverExec, "Ping implementation: exec or native")
	f.String("local-port-strategy", config.StrategyInspect, "Local port check: inspect or bind")
	f.String("listener-source", config.SourceNative, "TCP table source for inspect: native or netstat")
	f.String("redis", "", "Publish progress lines to this Redis server (host:port)")
}

func newRedisClient(rc config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
}
