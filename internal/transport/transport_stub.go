//go:build !linux
// +build !linux

// Package transport
// Author: momentics <momentics@gmail.com>
//
// The raw-descriptor listener is only available on Linux.

package transport

import (
	"net/netip"

	"github.com/momentics/hioload-httpd/api"
)

func listen(netip.AddrPort, int) (*Listener, error) {
	return nil, api.ErrNotSupported
}

func (l *Listener) Accept() (int, netip.AddrPort, error) {
	return -1, netip.AddrPort{}, api.ErrNotSupported
}

func (l *Listener) Close() error { return nil }
