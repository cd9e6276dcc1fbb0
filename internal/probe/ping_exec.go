package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	perr "connprobe/internal/errors"
)

// ExecPinger runs the operating system's ping tool for one echo
// request.  The tool, and anything it starts, is killed once the
// timeout plus a short grace period has passed.
type ExecPinger struct {
	Binary string // default "ping" ("ping6" for IPv6 on darwin)
	GOOS   string // default runtime.GOOS
}

var (
	replyRe       = regexp.MustCompile(`(?i)(reply from|bytes from|応答)`)
	replyFailedRe = regexp.MustCompile(`(?i)(unreachable|ttl expired|general failure|transmit failed)`)
)

// Ping runs the tool and decides from its output whether a reply came
// back.
func (p *ExecPinger) Ping(ctx context.Context, ip net.IP, timeout time.Duration) (Reply, error) {
	bin, args := p.command(ip, timeout)

	ctx, cancel := context.WithTimeout(ctx, timeoutOr(timeout)+pingGrace)
	defer cancel()

	raw, err := toolCommand(ctx, bin, args...).CombinedOutput()
	err = toolExited(err)
	reply := parsePingOutput(string(raw))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return reply, perr.Wrap("ping", ip.String(), ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit with no reply is the normal "no answer" case.
			return reply, nil
		}
		return reply, perr.Wrap("ping", ip.String(), err)
	}
	return reply, nil
}

func (p *ExecPinger) command(ip net.IP, timeout time.Duration) (string, []string) {
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	bin := p.Binary
	v6 := ip.To4() == nil

	var args []string
	switch goos {
	case "windows":
		args = []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10)}
	case "darwin", "freebsd", "openbsd", "netbsd":
		if v6 {
			if bin == "" {
				bin = "ping6"
			}
			args = []string{"-c", "1"}
		} else {
			args = []string{"-c", "1", "-W", strconv.FormatInt(timeout.Milliseconds(), 10)}
		}
	default:
		secs := int((timeout + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = []string{"-c", "1", "-W", strconv.Itoa(secs)}
	}
	if bin == "" {
		bin = "ping"
	}
	return bin, append(args, ip.String())
}

// parsePingOutput keeps the non-blank lines and looks for a genuine
// echo reply among them.
func parsePingOutput(out string) Reply {
	var r Reply
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.Output = append(r.Output, line)
		if replyRe.MatchString(line) && !replyFailedRe.MatchString(line) {
			r.Alive = true
		}
	}
	return r
}

// String describes the command line without its target, as logged
// when checks are configured.
func (p *ExecPinger) String() string {
	bin, args := p.command(net.IPv4(192, 0, 2, 1), DefaultTimeout)
	return fmt.Sprintf("%s %s", bin, strings.Join(args[:len(args)-1], " "))
}
