package probe

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"

	perr "connprobe/internal/errors"
)

// Entry is one row of the local TCP table.
type Entry struct {
	Local  string
	Remote string
	State  string
	PID    int32
}

// Listening reports whether the entry is a listening socket.
func (e Entry) Listening() bool {
	switch strings.ToUpper(e.State) {
	case "LISTEN", "LISTENING":
		return true
	}
	return false
}

func (e Entry) String() string {
	s := fmt.Sprintf("TCP  %-24s %-24s %s", e.Local, e.Remote, e.State)
	if e.PID > 0 {
		s += fmt.Sprintf("  pid=%d", e.PID)
	}
	return s
}

// ListenerSource enumerates the TCP table entries bound to a local port.
type ListenerSource interface {
	Name() string
	Entries(ctx context.Context, port int) ([]Entry, error)
}

// ── gopsutil ─────────────────────────────────────────────────────────

// NativeSource reads the connection table through the operating
// system's API (procfs, sysctl or iphlpapi).
type NativeSource struct{}

// Name implements ListenerSource.
func (NativeSource) Name() string { return "native" }

// Entries implements ListenerSource.
func (NativeSource) Entries(ctx context.Context, port int) ([]Entry, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, perr.Wrap("inspect", "", err)
	}

	var out []Entry
	for _, c := range conns {
		if int(c.Laddr.Port) != port {
			continue
		}
		out = append(out, Entry{
			Local:  joinAddr(c.Laddr.IP, c.Laddr.Port),
			Remote: joinAddr(c.Raddr.IP, c.Raddr.Port),
			State:  c.Status,
			PID:    c.Pid,
		})
	}
	return out, nil
}

func joinAddr(ip string, port uint32) string {
	if ip == "" {
		ip = "*"
	}
	return net.JoinHostPort(ip, strconv.FormatUint(uint64(port), 10))
}

// ── netstat ──────────────────────────────────────────────────────────

// NetstatSource runs netstat and parses its table.  The process is
// bound to the caller's context.
type NetstatSource struct {
	Binary string // default "netstat"
	GOOS   string // default runtime.GOOS
}

// Name implements ListenerSource.
func (NetstatSource) Name() string { return "netstat" }

// Entries implements ListenerSource.
func (s NetstatSource) Entries(ctx context.Context, port int) ([]Entry, error) {
	bin := s.Binary
	if bin == "" {
		bin = "netstat"
	}
	goos := s.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	args := []string{"-an"}
	if goos == "windows" {
		args = append(args, "-p", "TCP")
	}

	raw, err := toolCommand(ctx, bin, args...).Output()
	if err = toolExited(err); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, perr.Wrap("netstat", "", err)
	}
	return parseNetstat(string(raw), port), nil
}

// parseNetstat extracts the TCP rows whose local port is port.  It
// understands the Windows layout (proto local remote state) and the
// BSD/Linux one (proto recv-q send-q local remote state), which both
// end in local, remote, state.
func parseNetstat(out string, port int) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.HasPrefix(strings.ToLower(fields[0]), "tcp") {
			continue
		}
		n := len(fields)
		local, remote, state := fields[n-3], fields[n-2], fields[n-1]
		if p, ok := addrPort(local); !ok || p != port {
			continue
		}
		entries = append(entries, Entry{Local: local, Remote: remote, State: state})
	}
	return entries
}

// addrPort returns the port of "1.2.3.4:80", "[::]:80", ":::80" or the
// BSD form "1.2.3.4.80" / "*.80".
func addrPort(addr string) (int, bool) {
	i := strings.LastIndexAny(addr, ":.")
	if i < 0 || i == len(addr)-1 {
		return 0, false
	}
	p, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return 0, false
	}
	return p, true
}
