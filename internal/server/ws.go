package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"connprobe/internal/core"
	"connprobe/internal/sink"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// runChecksWS runs a mode for a WebSocket client.  Query parameters are
// the parameter map.  Every line is one text message holding a
// LineEvent, followed by a ResultEvent and a normal close.  The run is
// cancelled when the client goes away.
func (s *Server) runChecksWS(c *gin.Context) {
	params := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[len(v)-1]
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The reader only watches for the client closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	runID := core.NewRunID()
	out := &wsSink{conn: conn}
	res := s.orch.RunWithID(ctx, runID, c.Param("mode"), params, s.runSink(runID, out))
	if res.Err != nil {
		s.logger.Warn("run ended with error", "run_id", runID, "error", res.Err)
	}

	if err := out.write(ResultEvent{Type: "result", Result: res}); err != nil {
		return
	}
	out.mu.Lock()
	conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"),
		time.Now().Add(wsWriteTimeout))
	out.mu.Unlock()
}

// wsSink sends lines as JSON text messages.  Each write is bounded so a
// stalled client cannot hold a run forever.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSink) Emit(l sink.Line) error {
	return w.write(LineEvent{Type: "line", Text: l.Text, Status: l.Status})
}

func (w *wsSink) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("websocket deadline: %w", err)
	}
	if err := w.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
