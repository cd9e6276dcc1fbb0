package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"connprobe/internal/core"
	"connprobe/internal/sink"
)

// ContentTypeNDJSON is the media type of streamed runs.
const ContentTypeNDJSON = "application/x-ndjson"

// LineEvent carries one progress line.
type LineEvent struct {
	Type   string      `json:"type"` // "line"
	Text   string      `json:"text"`
	Status sink.Status `json:"status"`
}

// ResultEvent closes a stream.
type ResultEvent struct {
	Type   string         `json:"type"` // "result"
	Result core.RunResult `json:"result"`
}

// RunRequest is the body of POST /api/v1/checks/:mode.
type RunRequest struct {
	Params map[string]string `json:"params"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "connprobe",
		"version":   s.opts.Version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) metricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) listModes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modes": s.orch.Registry.Modes()})
}

func (s *Server) getMode(c *gin.Context) {
	m, err := s.orch.Registry.Resolve(c.Param("mode"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_mode", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

// runChecks streams one run as NDJSON: a LineEvent per line, then a
// ResultEvent.  Unknown modes stream like any other run.
func (s *Server) runChecks(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body", "message": err.Error()})
		return
	}

	runID := core.NewRunID()
	c.Header("Content-Type", ContentTypeNDJSON)
	c.Header("X-Run-ID", runID)
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	out := &streamSink{w: c.Writer, flush: c.Writer.Flush}
	res := s.orch.RunWithID(c.Request.Context(), runID, c.Param("mode"), req.Params, s.runSink(runID, out))
	if res.Err != nil {
		s.logger.Warn("run ended with error", "run_id", runID, "error", res.Err)
	}
	out.writeJSON(ResultEvent{Type: "result", Result: res}) //nolint:errcheck
}

// streamSink writes each line as one JSON document per row and
// flushes it so the client sees progress as it happens.
type streamSink struct {
	mu    sync.Mutex
	w     io.Writer
	flush func()
}

func (s *streamSink) Emit(l sink.Line) error {
	return s.writeJSON(LineEvent{Type: "line", Text: l.Text, Status: l.Status})
}

func (s *streamSink) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}
