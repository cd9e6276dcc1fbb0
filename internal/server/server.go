// Package server exposes the probe engine over HTTP: a mode catalogue,
// NDJSON-streamed runs, WebSocket-streamed runs and the metrics
// snapshot.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"connprobe/internal/core"
	"connprobe/internal/metrics"
	"connprobe/internal/sink"
	"connprobe/util"
)

// Options configures a Server.
type Options struct {
	Mode            string // gin mode: debug, release or test
	ShutdownTimeout time.Duration
	Version         string

	// Redis, when set, receives every line of every run on
	// <ChannelPrefix>:<run id>.
	Redis          sink.Publisher
	ChannelPrefix  string
	PublishTimeout time.Duration
}

// Server is the HTTP front end of one Orchestrator.
type Server struct {
	opts    Options
	router  *gin.Engine
	orch    *core.Orchestrator
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a server with all routes registered.
func New(opts Options, orch *core.Orchestrator, logger *slog.Logger) *Server {
	switch opts.Mode {
	case gin.ReleaseMode, gin.DebugMode, gin.TestMode:
		gin.SetMode(opts.Mode)
	}
	if logger == nil {
		logger = util.Discard()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		opts:    opts,
		router:  gin.New(),
		orch:    orch,
		metrics: orch.Metrics,
		logger:  logger.With("component", "server"),
	}
	s.router.Use(gin.Recovery(), s.loggerMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", s.metricsSnapshot)

	api := s.router.Group("/api/v1")
	{
		api.GET("/modes", s.listModes)
		api.GET("/modes/:mode", s.getMode)
		api.POST("/checks/:mode", s.runChecks)
	}

	ws := s.router.Group("/ws")
	{
		ws.GET("/checks/:mode", s.runChecksWS)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "path": c.Request.URL.Path})
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully, waiting up to ShutdownTimeout for in-flight runs.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ListenAndServe is Serve on a new TCP listener.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := s.logger.Debug
		if status >= 400 {
			log = s.logger.Warn
		}
		if status >= 500 {
			log = s.logger.Error
		}
		log("HTTP request",
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
		)
	}
}

// runSink returns the sink for one run: primary, plus the Redis fan-out
// when configured.  Redis failures are logged and never stop the run.
func (s *Server) runSink(runID string, primary sink.Sink) sink.Sink {
	if s.opts.Redis == nil {
		return primary
	}
	channel := sink.RedisChannel(s.opts.ChannelPrefix, runID)
	pub := sink.NewRedis(s.opts.Redis, channel, s.opts.PublishTimeout)
	return sink.Multi(primary, sink.BestEffort(pub, func(err error) {
		s.logger.Warn("redis publish failed", "run_id", runID, "error", err)
	}))
}
