// File: internal/httpconn/env.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpconn

import (
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/control"
	"github.com/momentics/hioload-httpd/internal/concurrency"
	"go.uber.org/zap"
)

// Defaults for the fixed-size per-connection buffers.
const (
	DefaultReadBufferSize  = 2048
	DefaultWriteBufferSize = 2048
	DefaultMaxPathLen      = 200
	DefaultIdleTimeout     = 15 * time.Second
)

// Env is the process-scoped context shared by every connection. Its fields
// are set up once; the live counter is written by the reactor goroutine only.
type Env struct {
	Poller  api.Poller
	Timers  *concurrency.TimerList[int]
	Files   api.FileSystem
	DocRoot string

	IdleTimeout      time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	MaxPathLen       int
	MaxContentLength int // 0 means the read buffer capacity

	// NotFoundResponses answers 404 for missing targets instead of leaving
	// the request incomplete.
	NotFoundResponses bool

	Clock   func() time.Time // nil means time.Now
	Logger  *zap.Logger
	Metrics *control.Metrics

	live int
}

// Live returns the number of initialized connections.
func (e *Env) Live() int {
	return e.live
}

// Now reads the clock deadlines are computed against.
func (e *Env) Now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Env) deadline() time.Time {
	idle := e.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return e.Now().Add(idle)
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
