package probe

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	perr "connprobe/internal/errors"
	"connprobe/internal/sink"
	"connprobe/internal/topology"
	"connprobe/internal/transport"
	"connprobe/util"
)

// ── helpers ──────────────────────────────────────────────────────────

func freePort(t *testing.T) int {
	t.Helper()
	port, err := util.FindFreePort()
	require.NoError(t, err)
	return port
}

// listen starts an accept-and-close loop and returns its port plus a
// stop function.  Stop also runs when the test ends.
func listen(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			ln.Close()
			wg.Wait()
		})
	}
	t.Cleanup(stop)
	return ln.Addr().(*net.TCPAddr).Port, stop
}

func verdict(t *testing.T, c *sink.Collector) sink.Line {
	t.Helper()
	tagged := c.Tagged()
	require.Len(t, tagged, 1, "every check emits exactly one verdict:\n%s", c.Text())
	return tagged[0]
}

// trackingDialer records every connection it hands out.
type trackingDialer struct {
	inner transport.Dialer
	mu    sync.Mutex
	conns []*trackedConn
}

type trackedConn struct {
	net.Conn
	closed bool
}

func (c *trackedConn) Close() error {
	c.closed = true
	return c.Conn.Close()
}

func (d *trackingDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.inner.Dial(ctx, network, address)
	if err != nil {
		return nil, err
	}
	tc := &trackedConn{Conn: conn}
	d.mu.Lock()
	d.conns = append(d.conns, tc)
	d.mu.Unlock()
	return tc, nil
}

func (d *trackingDialer) Close() error { return nil }

// ── TCP ──────────────────────────────────────────────────────────────

func TestTCP_OpenPort(t *testing.T) {
	defer goleak.VerifyNone(t)

	port, stop := listen(t)
	defer stop()
	d := &trackingDialer{inner: &transport.TCPDialer{}}
	check := &TCP{Dialer: d, Timeout: time.Second}

	for i := 0; i < 20; i++ {
		out := &sink.Collector{}
		ok := check.Check(context.Background(), out, topology.Check{Kind: topology.KindTCP, Host: "127.0.0.1", Port: port})
		require.True(t, ok, out.Text())
		assert.Equal(t, sink.OK, verdict(t, out).Status)
	}

	require.Len(t, d.conns, 20)
	for i, c := range d.conns {
		assert.True(t, c.closed, "connection %d left open", i)
	}
}

func TestTCP_RefusedWithinTimeout(t *testing.T) {
	port := freePort(t)
	check := &TCP{Dialer: &transport.TCPDialer{}, Timeout: DefaultTimeout}

	out := &sink.Collector{}
	start := time.Now()
	ok := check.Check(context.Background(), out, topology.Check{Kind: topology.KindTCP, Host: "127.0.0.1", Port: port})
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, DefaultTimeout+500*time.Millisecond)
	v := verdict(t, out)
	assert.Equal(t, sink.NG, v.Status)
	assert.Contains(t, v.Text, perr.ReasonRefused.Describe())
	assert.Contains(t, out.Text(), "ECONNREFUSED")
}

func TestTCP_FamilyV4RejectsIPv6Literal(t *testing.T) {
	check := &TCP{Dialer: &transport.TCPDialer{}, Timeout: time.Second}
	out := &sink.Collector{}

	ok := check.Check(context.Background(), out, topology.Check{
		Kind: topology.KindTCP, Host: "::1", Port: 80, Family: transport.FamilyV4,
	})
	assert.False(t, ok)
	assert.Contains(t, verdict(t, out).Text, perr.ReasonResolution.Describe())
}

func TestTCP_InvalidParameter(t *testing.T) {
	d := &trackingDialer{inner: &transport.TCPDialer{}}
	check := &TCP{Dialer: d}
	out := &sink.Collector{}

	ok := check.Check(context.Background(), out, topology.Check{
		Kind: topology.KindTCP, Host: "localhost", PortValue: "abc",
		Err: &perr.ParamError{Key: "mcport", Value: "abc", Msg: "not a number"},
	})
	assert.False(t, ok)
	assert.Equal(t, "  - Connecting to localhost:abc (TCP) ...", out.Lines()[0].Text)
	assert.Contains(t, verdict(t, out).Text, "mcport")
	assert.Empty(t, d.conns, "a malformed check must not dial")
}

func TestTCP_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	check := &TCP{Dialer: &transport.TCPDialer{}}
	out := &sink.Collector{}
	port, _ := listen(t)
	ok := check.Check(ctx, out, topology.Check{Kind: topology.KindTCP, Host: "127.0.0.1", Port: port})
	assert.False(t, ok)
	assert.Contains(t, verdict(t, out).Text, perr.ReasonCancelled.Describe())
}

// ── Skip ─────────────────────────────────────────────────────────────

func TestSkip(t *testing.T) {
	out := &sink.Collector{}
	ok := Skip(out, topology.Check{Kind: topology.KindPing, Host: "db"}, perr.ErrCancelled)
	assert.False(t, ok)

	lines := out.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "  - Pinging db ...", lines[0].Text)
	assert.Contains(t, lines[2].Text, "[ NG ]")
	assert.Contains(t, lines[2].Text, perr.ReasonCancelled.Describe())
}

func TestAnnounce_LineShape(t *testing.T) {
	tests := []struct {
		check topology.Check
		want  string
	}{
		{topology.Check{Kind: topology.KindLocalPort, Port: 8080}, "  - Checking that local port 8080 is listening ..."},
		{topology.Check{Kind: topology.KindPing, Host: "mc"}, "  - Pinging mc ..."},
		{topology.Check{Kind: topology.KindTCP, Host: "::1", Port: 80}, "  - Connecting to [::1]:80 (TCP) ..."},
	}
	for _, tt := range tests {
		out := &sink.Collector{}
		Announce(out, tt.check)
		assert.Equal(t, tt.want+"\n", out.Text())
	}
}

func TestTaggedLinesCarryMarker(t *testing.T) {
	out := &sink.Collector{}
	pass(out, "fine")
	fail(out, "broken")
	lines := out.Lines()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0].Text), "[ OK ]"))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[1].Text), "[ NG ]"))
}
