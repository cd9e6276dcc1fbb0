package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connprobe/internal/core"
	"connprobe/internal/metrics"
	"connprobe/internal/probe"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
)

type hostRecorder struct {
	mu    sync.Mutex
	hosts []string
}

func (h *hostRecorder) Check(_ context.Context, out sink.Sink, c topology.Check) bool {
	h.mu.Lock()
	h.hosts = append(h.hosts, c.Host)
	h.mu.Unlock()
	probe.Announce(out, c)
	out.Emit(sink.Line{Text: "    [ OK ] " + c.Target(), Status: sink.OK}) //nolint:errcheck
	return true
}

func newTestServer(t *testing.T, opts Options) (*Server, *hostRecorder) {
	t.Helper()
	rec := &hostRecorder{}
	orch := &core.Orchestrator{
		Registry: topology.MustLoad(),
		Checkers: map[topology.Kind]probe.Checker{
			topology.KindLocalPort: rec,
			topology.KindPing:      rec,
			topology.KindTCP:       rec,
		},
		Metrics: metrics.New(),
	}
	opts.Mode = gin.TestMode
	return New(opts, orch, nil), rec
}

type event struct {
	Type   string         `json:"type"`
	Text   string         `json:"text"`
	Status sink.Status    `json:"status"`
	Result core.RunResult `json:"result"`
}

func decodeStream(t *testing.T, body string) []event {
	t.Helper()
	var events []event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var ev event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{Version: "1.2.3"})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
}

func TestListModes(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/modes", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Modes []topology.Mode `json:"modes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Modes, 5)
	assert.Equal(t, "das", body.Modes[0].ID)
	assert.Equal(t, "DAS local", body.Modes[0].Sections[0].Title)
}

func TestGetMode(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/modes/kapplets", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mysql-service")

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/modes/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunChecks_StreamsLinesThenResult(t *testing.T) {
	s, rec := newTestServer(t, Options{})

	body := `{"params":{"mchost":"10.1.1.1","ipFamily":"4"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checks/das", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ContentTypeNDJSON, w.Header().Get("Content-Type"))
	runID := w.Header().Get("X-Run-ID")
	assert.NotEmpty(t, runID)

	events := decodeStream(t, w.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, "result", last.Type)
	assert.Equal(t, runID, last.Result.RunID)
	assert.Equal(t, core.StateCompleted, last.Result.State)
	assert.Equal(t, 4, last.Result.Total)
	assert.Equal(t, 4, last.Result.Passed)

	tagged := 0
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "line", ev.Type)
		if ev.Status != sink.Plain {
			tagged++
		}
	}
	assert.Equal(t, 5, tagged)
	assert.Contains(t, rec.hosts, "10.1.1.1")
}

func TestRunChecks_EmptyBodyUsesDefaults(t *testing.T) {
	s, rec := newTestServer(t, Options{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checks/kapplets", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, rec.hosts, "mysql-service")
}

func TestRunChecks_UnknownMode(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checks/nope", nil))

	events := decodeStream(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "[ERROR] unknown mode: nope", events[0].Text)
	assert.Equal(t, "result", events[1].Type)
	assert.Contains(t, events[1].Result.Error, "unknown mode")
}

func TestRunChecks_BadBody(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checks/das", strings.NewReader(`{"params":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsAfterRun(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/checks/mc", nil))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.RunsTotal)
	assert.Equal(t, int64(7), snap.ChecksOK)
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels map[string]int
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[channel]++
	return redis.NewIntResult(0, nil)
}

func TestRunChecks_PublishesToRedis(t *testing.T) {
	pub := &recordingPublisher{channels: map[string]int{}}
	s, _ := newTestServer(t, Options{Redis: pub, ChannelPrefix: "site-a"})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checks/ds", nil))

	lines := len(decodeStream(t, w.Body.String())) - 1
	channel := "site-a:" + w.Header().Get("X-Run-ID")
	assert.Equal(t, lines, pub.channels[channel])
}

func TestRunChecks_RedisFailureDoesNotStopRun(t *testing.T) {
	failing := &failingPublisher{}
	s, _ := newTestServer(t, Options{Redis: failing})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checks/das", nil))

	events := decodeStream(t, w.Body.String())
	last := events[len(events)-1]
	assert.Empty(t, last.Result.Error)
	assert.Equal(t, 4, last.Result.Passed)
	assert.Positive(t, failing.calls)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, interface{}) *redis.IntCmd {
	f.calls++
	return redis.NewIntResult(0, fmt.Errorf("connection refused"))
}

func TestWebSocket_Run(t *testing.T) {
	s, rec := newTestServer(t, Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/checks/rs?mchost=mc.local&dashost=das.local"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []event
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		events = append(events, ev)
		if ev.Type == "result" {
			break
		}
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, "result", last.Type)
	assert.Equal(t, 7, last.Result.Total)
	assert.Equal(t, "---", events[0].Text[:3])

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.hosts, "mc.local")
	assert.Contains(t, rec.hosts, "das.local")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, Options{ShutdownTimeout: time.Second})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
