// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server wires the reactor, the listening socket, the worker pool and the
// connection slot table together.

package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/control"
	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/momentics/hioload-httpd/internal/docroot"
	"github.com/momentics/hioload-httpd/internal/httpconn"
	"github.com/momentics/hioload-httpd/internal/transport"
	"github.com/momentics/hioload-httpd/reactor"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Server is an event-driven static file server. All socket state is owned
// by the goroutine executing Run; workers only parse and build responses.
type Server struct {
	cfg     Config
	log     *zap.Logger
	metrics *control.Metrics
	probes  api.Debug
	files   api.FileSystem
	clock   func() time.Time

	poller   api.Poller
	listener *transport.Listener
	pool     *concurrency.ThreadPool[*httpconn.Conn]
	env      *httpconn.Env
	conns    []*httpconn.Conn
	events   []api.Event

	pipeMu sync.RWMutex
	pipe   [2]int // [0] watched by the reactor, [1] written by workers, timers and signals

	doneMu sync.Mutex
	done   []*httpconn.Conn

	sweepPending bool
	alarmPending atomic.Bool
	stopping     atomic.Bool
	running      atomic.Bool
	live         atomic.Int64
	timers       atomic.Int64
}

// NewServer validates cfg, binds the listening socket and prepares the
// reactor. Nothing is served until Run.
func NewServer(cfg Config, opts ...ServerOption) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:    cfg,
		log:    zap.NewNop(),
		probes: control.NewDebugProbes(),
		pipe:   [2]int{-1, -1},
	}
	for _, o := range opts {
		o(s)
	}
	if s.files == nil {
		s.files = docroot.New()
	}
	if s.metrics == nil {
		m, err := control.NewMetrics(noop.NewMeterProvider())
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}

	if err := s.open(); err != nil {
		s.closeAll()
		return nil, err
	}

	s.env = &httpconn.Env{
		Poller:            s.poller,
		Timers:            concurrency.NewTimerList[int](min(cfg.MaxConnections, 1024)),
		Files:             s.files,
		DocRoot:           strings.TrimRight(cfg.DocRoot, "/"),
		IdleTimeout:       cfg.IdleTimeout,
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		MaxPathLen:        cfg.MaxPathLen,
		NotFoundResponses: cfg.NotFoundResponses,
		Clock:             s.clock,
		Logger:            s.log,
		Metrics:           s.metrics,
	}
	s.conns = make([]*httpconn.Conn, cfg.MaxFD)
	s.events = make([]api.Event, cfg.MaxEvents)

	var poolOpts []concurrency.PoolOption
	if cfg.PinWorkers {
		poolOpts = append(poolOpts, concurrency.WithCPUPinning())
	}
	pool, err := concurrency.NewThreadPool(cfg.Workers, cfg.MaxRequests, s.work, poolOpts...)
	if err != nil {
		s.closeAll()
		return nil, err
	}
	s.pool = pool
	s.registerProbes()
	return s, nil
}

// open creates the poller, the listener and the wake-up pipe and registers
// the latter two level-triggered.
func (s *Server) open() error {
	var err error
	if s.poller, err = reactor.New(s.cfg.MaxEvents); err != nil {
		return fmt.Errorf("reactor: %w", err)
	}
	if s.listener, err = transport.Listen(s.cfg.Host, s.cfg.Port, s.cfg.Backlog); err != nil {
		return err
	}
	if s.pipe, err = newWakePipe(); err != nil {
		s.pipe = [2]int{-1, -1}
		return fmt.Errorf("wake pipe: %w", err)
	}
	if err := s.poller.Add(s.listener.Fd(), api.InterestRead, api.ModeLevel); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}
	if err := s.poller.Add(s.pipe[0], api.InterestRead, api.ModeLevel); err != nil {
		return fmt.Errorf("register wake pipe: %w", err)
	}
	return nil
}

func (s *Server) registerProbes() {
	control.RegisterPlatformProbes(s.probes)
	s.probes.RegisterProbe("server.live_connections", func() any { return s.live.Load() })
	s.probes.RegisterProbe("server.timers", func() any { return s.timers.Load() })
	s.probes.RegisterProbe("server.pool", func() any { return s.pool.Stats() })
	s.probes.RegisterProbe("server.metrics", func() any { return s.metrics.Snapshot() })
	s.probes.RegisterProbe("server.config", func() any {
		return map[string]any{
			"docroot":         s.cfg.DocRoot,
			"workers":         s.cfg.Workers,
			"max_requests":    s.cfg.MaxRequests,
			"max_connections": s.cfg.MaxConnections,
			"time_slot":       s.cfg.TimeSlot.String(),
			"idle_timeout":    s.cfg.IdleTimeout.String(),
			"pin_workers":     s.cfg.PinWorkers,
		}
	})
}

var _ api.GracefulShutdown = (*Server)(nil)

// Port returns the bound TCP port.
func (s *Server) Port() int {
	return s.listener.Port()
}

// Stats returns the output of every registered debug probe.
func (s *Server) Stats() map[string]any {
	return s.probes.DumpState()
}

// Metrics returns the server's metrics recorder.
func (s *Server) Metrics() *control.Metrics {
	return s.metrics
}

// Shutdown asks Run to stop. It is safe to call from any goroutine and
// more than once.
func (s *Server) Shutdown() error {
	s.stopping.Store(true)
	s.wake(wakeStop)
	return nil
}

// wake writes one byte into the wake-up pipe. A full pipe already holds an
// unread byte, so the write may be dropped.
func (s *Server) wake(b byte) {
	s.pipeMu.RLock()
	defer s.pipeMu.RUnlock()
	if s.pipe[1] < 0 {
		return
	}
	if err := writeWake(s.pipe[1], b); err != nil && !errors.Is(err, api.ErrWouldBlock) {
		s.log.Warn("wake pipe write failed", zap.Error(err))
	}
}

// closeAll releases the descriptors owned by the server itself.
func (s *Server) closeAll() {
	var errs error
	if s.listener != nil {
		errs = errors.Join(errs, s.listener.Close())
	}
	s.pipeMu.Lock()
	for i, fd := range s.pipe {
		if fd >= 0 {
			errs = errors.Join(errs, closeFd(fd))
			s.pipe[i] = -1
		}
	}
	s.pipeMu.Unlock()
	if s.poller != nil {
		errs = errors.Join(errs, s.poller.Close())
	}
	if errs != nil {
		s.log.Warn("teardown", zap.Error(errs))
	}
}
