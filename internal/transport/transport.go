// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent part of the listening socket.

package transport

import (
	"fmt"
	"net/netip"

	"github.com/momentics/hioload-httpd/api"
)

// DefaultBacklog is the listen queue length.
const DefaultBacklog = 128

// Listener is a non-blocking TCP listening socket owned by the reactor.
type Listener struct {
	fd   int
	addr netip.AddrPort
}

// Listen binds host:port. An empty host binds every IPv4 address; port 0
// picks an ephemeral port.
func Listen(host string, port, backlog int) (*Listener, error) {
	if port < 0 || port > 65535 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "port out of range").
			WithContext("port", port)
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	ip := netip.IPv4Unspecified()
	if host != "" {
		var err error
		if ip, err = netip.ParseAddr(host); err != nil {
			return nil, fmt.Errorf("listen %q: %w", host, api.ErrInvalidArgument)
		}
	}
	return listen(netip.AddrPortFrom(ip, uint16(port)), backlog)
}

// Fd returns the socket descriptor for poller registration.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the bound address, with the actual port when 0 was requested.
func (l *Listener) Addr() netip.AddrPort { return l.addr }

// Port returns the bound port.
func (l *Listener) Port() int { return int(l.addr.Port()) }
