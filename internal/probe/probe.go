// Package probe implements the TCP reachability check used both for
// startup readiness and for periodic liveness of the supervised server.
// Accepting a connection on the configured port is the only signal
// observed; no application-level handshake is performed.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Default intervals for a probe loop.
const (
	DefaultDialTimeout  = time.Second
	DefaultPollInterval = time.Second
)

// Prober checks whether a TCP endpoint accepts connections.
// The zero value is not usable; construct with New.
type Prober struct {
	addr         string
	dialTimeout  time.Duration
	pollInterval time.Duration
}

// New returns a Prober for host:port with default per-attempt timeout
// and poll interval.
func New(host string, port int) *Prober {
	return &Prober{
		addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		dialTimeout:  DefaultDialTimeout,
		pollInterval: DefaultPollInterval,
	}
}

// Addr returns the probed address in host:port form.
func (p *Prober) Addr() string { return p.addr }

// Reachable performs a single connect attempt. Connection errors mean
// "not ready", never a fatal condition.
func (p *Prober) Reachable() bool {
	conn, err := net.DialTimeout("tcp", p.addr, p.dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitReady polls the endpoint until it accepts a connection or timeout
// elapses. It returns true as soon as a connect succeeds, false on
// timeout or context cancellation.
func (p *Prober) WaitReady(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.Reachable() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.pollInterval):
		}
	}
	return false
}
