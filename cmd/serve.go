package cmd

import (
	"github.com/spf13/cobra"

	"connprobe/config"
	"connprobe/internal/core"
	"connprobe/internal/metrics"
	"connprobe/internal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve check runs over HTTP and WebSocket",
		Long: `Start the HTTP server.

  GET  /health                  liveness
  GET  /metrics                 run and check counters
  GET  /api/v1/modes[/:mode]    mode catalogue
  POST /api/v1/checks/:mode     run, streamed as NDJSON
  GET  /ws/checks/:mode         run, streamed over a WebSocket

The server stops accepting runs on SIGINT or SIGTERM and waits for the
ones in flight up to server.shutdown_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			opts := server.Options{
				Mode:            cfg.Server.Mode,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Version:         version,
			}
			if cfg.Redis.Enabled() {
				client := newRedisClient(cfg.Redis)
				defer client.Close()
				if err := client.Ping(cmd.Context()).Err(); err != nil {
					logger.Warn("redis unreachable; progress will not be published until it is", "addr", cfg.Redis.Addr, "error", err)
				}
				opts.Redis = client
				opts.ChannelPrefix = cfg.Redis.ChannelPrefix
				opts.PublishTimeout = cfg.Redis.PublishTimeout
			}

			return server.New(opts, orch, logger).ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}

	cmd.Flags().String("addr", config.DefaultServerAddr, "Listen address")
	addProbeFlags(cmd.Flags())
	return cmd
}
