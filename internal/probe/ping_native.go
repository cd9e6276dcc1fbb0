package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	perr "connprobe/internal/errors"
)

// NativePinger sends ICMP echo requests from the process itself.
// Unprivileged mode uses datagram ICMP sockets; on Linux that needs
// net.ipv4.ping_group_range to include the user's group.
type NativePinger struct {
	Privileged bool
}

func (p *NativePinger) String() string {
	if p.Privileged {
		return "native ICMP (raw socket)"
	}
	return "native ICMP (datagram socket)"
}

// Ping sends one echo request and waits up to timeout for the reply.
func (p *NativePinger) Ping(ctx context.Context, ip net.IP, timeout time.Duration) (Reply, error) {
	pinger := probing.New(ip.String())
	pinger.SetIPAddr(&net.IPAddr{IP: ip})
	pinger.SetPrivileged(p.Privileged)
	pinger.Count = 1
	pinger.Timeout = timeout

	var reply Reply
	pinger.OnRecv = func(pkt *probing.Packet) {
		reply.Output = append(reply.Output, fmt.Sprintf("%d bytes from %s: icmp_seq=%d ttl=%d time=%v",
			pkt.Nbytes, pkt.IPAddr, pkt.Seq, pkt.TTL, pkt.Rtt.Round(time.Microsecond)))
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		return reply, perr.Wrap("ping", ip.String(), err)
	}

	stats := pinger.Statistics()
	reply.Output = append(reply.Output, fmt.Sprintf("%d packets transmitted, %d received, %.0f%% packet loss",
		stats.PacketsSent, stats.PacketsRecv, stats.PacketLoss))
	reply.Alive = stats.PacketsRecv > 0
	if !reply.Alive && ctx.Err() != nil {
		return reply, perr.Wrap("ping", ip.String(), ctx.Err())
	}
	return reply, nil
}
