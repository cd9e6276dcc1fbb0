package util

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// PrimaryIPv4 returns the first IPv4 address of an interface that is up
// and not a loopback, or "N/A".
func PrimaryIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "N/A"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != "" {
			return ip
		}
	}
	return "N/A"
}

func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
			return ip4.String()
		}
	}
	return ""
}

// Identity describes the machine and account a log was produced on.
type Identity struct {
	Hostname string
	User     string
	IPv4     string
}

// CurrentIdentity collects the local Identity.  Missing values are
// reported as "N/A".
func CurrentIdentity() Identity {
	id := Identity{Hostname: "N/A", User: "N/A", IPv4: PrimaryIPv4()}
	if h, err := os.Hostname(); err == nil && h != "" {
		id.Hostname = h
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		id.User = u.Username
	}
	return id
}
