// File: server/run.go
// Package server implements the reactor loop: readiness dispatch, accept,
// worker hand-off and completion, idle sweeping and graceful teardown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/internal/httpconn"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run serves until ctx is cancelled, Shutdown is called or SIGTERM/SIGINT
// arrives, then tears everything down. Run may only be called once.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.loop()
	})
	g.Go(func() error {
		return s.forwardSignals(gctx)
	})
	err := g.Wait()
	s.teardown()
	return err
}

// forwardSignals turns process signals into wake-up bytes for the loop.
func (s *Server) forwardSignals(ctx context.Context) error {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, forwardedSignals...)
	defer signal.Stop(sigs)
	if len(ignoredSignals) > 0 {
		signal.Ignore(ignoredSignals...)
	}
	for {
		select {
		case <-ctx.Done():
			return s.Shutdown()
		case sig := <-sigs:
			s.log.Info("signal received", zap.Stringer("signal", sig))
			if b := signalByte(sig); b == wakeStop {
				_ = s.Shutdown()
			} else {
				s.wake(b)
			}
		}
	}
}

func (s *Server) loop() error {
	alarm := time.AfterFunc(s.cfg.TimeSlot, s.onAlarm)
	defer alarm.Stop()

	s.log.Info("serving",
		zap.Stringer("addr", s.listener.Addr()),
		zap.String("docroot", s.cfg.DocRoot),
		zap.Int("workers", s.cfg.Workers),
		zap.Duration("idle_timeout", s.cfg.IdleTimeout))

	for !s.stopping.Load() {
		n, err := s.poller.Wait(s.events, -1)
		if err != nil {
			return fmt.Errorf("reactor wait: %w", err)
		}
		for _, ev := range s.events[:n] {
			switch ev.Fd {
			case s.listener.Fd():
				s.acceptAll()
			case s.pipe[0]:
				s.drainWake()
			default:
				s.handle(ev)
			}
		}
		if s.sweepDue() {
			s.sweep(s.env.Now())
			alarm.Reset(s.cfg.TimeSlot)
		}
		s.live.Store(int64(s.env.Live()))
		s.timers.Store(int64(s.env.Timers.Len()))
	}
	s.log.Info("reactor stopped")
	return nil
}

// onAlarm runs on the timer goroutine. The flag survives a wake byte
// dropped on a full pipe, and a full pipe keeps the loop readable anyway.
func (s *Server) onAlarm() {
	s.alarmPending.Store(true)
	s.wake(wakeAlarm)
}

// sweepDue reports and clears a pending alarm or SIGALRM.
func (s *Server) sweepDue() bool {
	due := s.alarmPending.Swap(false) || s.sweepPending
	s.sweepPending = false
	return due
}

func (s *Server) acceptAll() {
	for {
		fd, peer, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, api.ErrWouldBlock) {
				s.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		if fd >= len(s.conns) || s.env.Live() >= s.cfg.MaxConnections {
			s.log.Warn("connection rejected: server busy",
				zap.Int("fd", fd), zap.Stringer("peer", peer), zap.Int("live", s.env.Live()))
			s.metrics.Rejected()
			_ = closeFd(fd)
			continue
		}
		c := s.conns[fd]
		if c == nil {
			c = httpconn.NewConn(s.env)
			s.conns[fd] = c
		}
		if err := c.Init(fd, peer); err != nil {
			s.log.Error("connection init failed", zap.Int("fd", fd), zap.Error(err))
			_ = closeFd(fd)
			continue
		}
		s.log.Debug("connection accepted", zap.Int("fd", fd), zap.Stringer("peer", peer))
	}
}

func (s *Server) drainWake() {
	var buf [256]byte
	for {
		n, err := readWake(s.pipe[0], buf[:])
		if err != nil {
			if !errors.Is(err, api.ErrWouldBlock) {
				s.log.Error("wake pipe read failed", zap.Error(err))
			}
			break
		}
		if n == 0 {
			break
		}
		for _, b := range buf[:n] {
			switch b {
			case wakeAlarm:
				s.sweepPending = true
			case wakeStop:
				s.stopping.Store(true)
			}
		}
	}
	s.drainCompletions()
}

func (s *Server) handle(ev api.Event) {
	c := s.slot(ev.Fd)
	if c == nil || !c.Live() || c.Busy() {
		s.log.Debug("stale readiness event", zap.Int("fd", ev.Fd))
		return
	}
	switch {
	case ev.Has(api.EventHangup):
		s.closeConn(c, "hangup")
	case ev.Has(api.EventReadable):
		st, err := c.DrainRead()
		if !st.Ok() {
			s.log.Debug("read ended", zap.Int("fd", c.Fd()), zap.Stringer("status", st), zap.Error(err))
			s.closeConn(c, st.String())
			return
		}
		s.dispatch(c)
	case ev.Has(api.EventWritable):
		s.onWritable(c)
	}
}

func (s *Server) onWritable(c *httpconn.Conn) {
	st, err := c.DrainWrite()
	switch st {
	case httpconn.WriteWouldBlock:
		s.rearm(c, c.ArmWrite)
	case httpconn.WriteDone:
		if c.Pending() {
			s.dispatch(c)
			return
		}
		s.rearm(c, c.ArmRead)
	case httpconn.WriteClose:
		s.closeConn(c, "done")
	default:
		s.log.Debug("write failed", zap.Int("fd", c.Fd()), zap.Error(err))
		s.closeConn(c, st.String())
	}
}

// dispatch hands c to the worker pool. A full queue drops the work item and
// re-arms for reading so the client's next bytes retry it.
func (s *Server) dispatch(c *httpconn.Conn) {
	if err := c.Handoff(); err != nil {
		s.log.Error("handoff failed", zap.Int("fd", c.Fd()), zap.Error(err))
		return
	}
	if s.pool.Submit(c) {
		return
	}
	_ = c.Reclaim()
	s.metrics.Dropped()
	s.log.Warn("work queue full, request dropped", zap.Int("fd", c.Fd()), zap.Error(api.ErrQueueFull))
	s.rearm(c, c.ArmRead)
}

// work runs on a pool worker.
func (s *Server) work(c *httpconn.Conn) {
	defer s.complete(c)
	c.Process()
}

func (s *Server) complete(c *httpconn.Conn) {
	s.doneMu.Lock()
	s.done = append(s.done, c)
	s.doneMu.Unlock()
	s.wake(wakeDone)
}

func (s *Server) takeCompleted() []*httpconn.Conn {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	batch := s.done
	s.done = nil
	return batch
}

// drainCompletions takes back connections finished by workers and applies
// the action each one recorded.
func (s *Server) drainCompletions() {
	for _, c := range s.takeCompleted() {
		if err := c.Reclaim(); err != nil {
			s.log.Error("reclaim failed", zap.Int("fd", c.Fd()), zap.Error(err))
			continue
		}
		if c.Doomed() {
			s.closeConn(c, "expired")
			continue
		}
		switch c.Next() {
		case httpconn.NextRead:
			s.rearm(c, c.ArmRead)
		case httpconn.NextWrite:
			s.rearm(c, c.ArmWrite)
		default:
			s.closeConn(c, c.Outcome().String())
		}
	}
}

// sweep closes every connection idle past its deadline. A connection a
// worker still holds leaves the poller now and is closed on completion.
func (s *Server) sweep(now time.Time) {
	expired := s.env.Timers.Sweep(now, func(fd int) {
		c := s.slot(fd)
		if c == nil || !c.Live() {
			return
		}
		s.metrics.Expired()
		if c.Busy() {
			if err := c.Deregister(); err != nil {
				s.log.Debug("deregister", zap.Int("fd", fd), zap.Error(err))
			}
			return
		}
		s.closeConn(c, "idle")
	})
	if expired > 0 {
		s.log.Debug("idle sweep", zap.Int("expired", expired), zap.Int("live", s.env.Live()))
	}
}

func (s *Server) rearm(c *httpconn.Conn, arm func() error) {
	if err := arm(); err != nil {
		s.log.Debug("re-arm failed", zap.Int("fd", c.Fd()), zap.Error(err))
		s.closeConn(c, "rearm")
	}
}

func (s *Server) closeConn(c *httpconn.Conn, reason string) {
	fd := c.Fd()
	if err := c.Close(reason); err != nil {
		s.log.Debug("close", zap.Int("fd", fd), zap.Error(err))
	}
}

func (s *Server) slot(fd int) *httpconn.Conn {
	if fd < 0 || fd >= len(s.conns) {
		return nil
	}
	return s.conns[fd]
}

// teardown runs after the loop has exited. Workers are stopped first so
// every connection is back in reactor hands before it is closed.
func (s *Server) teardown() {
	s.pool.Close()
	for _, c := range s.takeCompleted() {
		_ = c.Reclaim()
	}
	for _, c := range s.conns {
		if c == nil || !c.Live() {
			continue
		}
		if c.Busy() {
			_ = c.Reclaim()
		}
		s.closeConn(c, "shutdown")
	}
	s.live.Store(0)
	s.timers.Store(int64(s.env.Timers.Len()))
	s.closeAll()
	s.log.Info("server stopped", zap.Any("metrics", s.metrics.Snapshot()))
}
