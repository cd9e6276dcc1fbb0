package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"connprobe/internal/core"
	"connprobe/internal/logfile"
	"connprobe/internal/metrics"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
)

type runOptions struct {
	params   map[string]string
	ipFamily string
	title    string
	saveLog  string
	deadline time.Duration
}

func newRunCommand(root *rootOptions) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <mode>",
		Short: "Run the connectivity checks of one mode",
		Long: `Run every check of the named mode in order and print the narration.

Parameters override the mode's field defaults; see "connprobe modes" for
the fields each mode reads. Failed checks do not change the exit status;
only an unknown mode or an unwritable output does.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, root, args[0])
		},
	}

	f := cmd.Flags()
	f.StringToStringVarP(&o.params, "param", "p", nil, "Check parameter as key=value (repeatable)")
	f.StringVar(&o.ipFamily, "ip-family", "", "Address family for ping and TCP checks: any, 4 or 6")
	f.StringVar(&o.title, "title", "", "Banner title (default the mode title)")
	f.StringVar(&o.saveLog, "save-log", "", "Also write the narration to this file or directory")
	f.DurationVar(&o.deadline, "deadline", 0, "Give up on checks not started within this time (0 = none)")
	addProbeFlags(f)
	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, root *rootOptions, mode string) error {
	cfg, logger, err := root.load(cmd)
	if err != nil {
		return err
	}
	reg, err := core.LoadRegistry(cfg)
	if err != nil {
		return err
	}
	orch, err := core.Build(cfg, reg, metrics.New(), logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	runID := core.NewRunID()
	collected := &sink.Collector{}
	sinks := []sink.Sink{sink.NewWriter(cmd.OutOrStdout()), collected}

	if cfg.Redis.Enabled() {
		client := newRedisClient(cfg.Redis)
		defer client.Close()

		pub := sink.NewRedis(client, sink.RedisChannel(cfg.Redis.ChannelPrefix, runID), cfg.Redis.PublishTimeout)
		logger.Info("publishing progress", "channel", pub.Channel())
		sinks = append(sinks, sink.BestEffort(pub, func(err error) {
			logger.Warn("redis publish failed", "error", err)
		}))
	}

	res := orch.RunWithID(ctx, runID, mode, o.mergedParams(), sink.Multi(sinks...))

	if o.saveLog != "" {
		path, err := logfile.Save(o.saveLog, logfile.NewHeader(runID, mode), collected.Lines())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Log saved to %s\n", path)
	}
	return res.Err
}

// mergedParams folds the dedicated flags into the parameter map.  An
// explicit flag wins over the same key given with --param.
func (o *runOptions) mergedParams() map[string]string {
	params := make(map[string]string, len(o.params)+2)
	for k, v := range o.params {
		params[strings.TrimSpace(k)] = v
	}
	if o.ipFamily != "" {
		params[topology.ParamIPFamily] = o.ipFamily
	}
	if o.title != "" {
		params[topology.ParamTitle] = o.title
	}
	return params
}
