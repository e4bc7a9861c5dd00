// reachability.go answers "can we reach the collector right now?".

package crashline

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Reachability reports current network availability.
type Reachability interface {
	Reachable(ctx context.Context) bool
}

// ReachabilityFunc adapts a function to Reachability.
type ReachabilityFunc func(ctx context.Context) bool

// Reachable calls f.
func (f ReachabilityFunc) Reachable(ctx context.Context) bool {
	return f(ctx)
}

// AlwaysReachable assumes the network is always available.
var AlwaysReachable Reachability = ReachabilityFunc(func(context.Context) bool { return true })

// NeverReachable reports the network as always down, queueing every report.
var NeverReachable Reachability = ReachabilityFunc(func(context.Context) bool { return false })

// DialReachability probes the collector host with a TCP connect.
type DialReachability struct {
	address string
	timeout time.Duration
	dialer  net.Dialer
}

// NewDialReachability probes the host of endpoint. A zero timeout means 2s.
func NewDialReachability(endpoint string, timeout time.Duration) *DialReachability {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DialReachability{address: dialAddress(endpoint), timeout: timeout}
}

// Reachable reports whether a TCP connection to the collector succeeds.
func (d *DialReachability) Reachable(ctx context.Context) bool {
	if d.address == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, err := d.dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// dialAddress turns an endpoint URL into host:port.
func dialAddress(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
