// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/control"
	"go.uber.org/zap"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records server events into m.
func WithMetrics(m *control.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithFileSystem replaces the document root file system.
func WithFileSystem(fs api.FileSystem) ServerOption {
	return func(s *Server) {
		s.files = fs
	}
}

// WithProbes registers the server's debug probes into dp.
func WithProbes(dp api.Debug) ServerOption {
	return func(s *Server) {
		if dp != nil {
			s.probes = dp
		}
	}
}

// WithClock replaces the clock used for idle deadlines and sweeps.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.clock = now
	}
}
