// File: internal/httpconn/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpconn

import (
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/internal/concurrency"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	ownerNone int32 = iota
	ownerReactor
	ownerWorker
)

// Conn is the state of one accepted socket. Conns live in a slot table
// indexed by descriptor and are re-initialized in place on reuse.
type Conn struct {
	env  *Env
	fd   int
	peer netip.AddrPort

	readBuf       []byte
	readLen       int
	checkedIdx    int
	startLine     int
	lineEnd       int
	state         parseState
	method        span
	url           span
	host          span
	body          span
	keepAlive     bool
	contentLength int
	resolved      bool
	path          []byte
	stat          api.FileStat
	file          api.MappedFile
	writeBuf      []byte
	writeLen      int
	iov           [2][]byte
	iovCount      int
	bytesToSend   int
	bytesSent     int

	timer      concurrency.TimerID
	owner      atomic.Int32
	registered bool
	doomed     bool
	next       Next
	outcome    Outcome
}

// NewConn allocates the fixed-size buffers of a connection slot.
func NewConn(env *Env) *Conn {
	return &Conn{
		env:      env,
		fd:       -1,
		readBuf:  make([]byte, orDefault(env.ReadBufferSize, DefaultReadBufferSize)),
		writeBuf: make([]byte, orDefault(env.WriteBufferSize, DefaultWriteBufferSize)),
		path:     make([]byte, 0, orDefault(env.MaxPathLen, DefaultMaxPathLen)),
	}
}

// Init takes ownership of an accepted descriptor: it registers fd for
// oneshot edge-triggered reads and starts the idle timer.
func (c *Conn) Init(fd int, peer netip.AddrPort) error {
	if c.owner.Load() != ownerNone {
		return fmt.Errorf("init fd %d: slot still live: %w", fd, api.ErrNotOwner)
	}
	c.fd = fd
	c.peer = peer
	c.readLen = 0
	c.reset()
	c.doomed = false
	c.next = NextRead
	c.outcome = Incomplete

	if err := c.env.Poller.Add(fd, api.InterestRead, api.ModeEdgeOneshot); err != nil {
		return fmt.Errorf("init fd %d: %w", fd, err)
	}
	c.registered = true
	c.timer = c.env.Timers.Insert(c.env.deadline(), fd)
	c.owner.Store(ownerReactor)
	c.env.live++
	c.env.Metrics.Accepted()
	return nil
}

// reset prepares the connection for the next request. Bytes received past
// the end of the previous request are moved to the front of the buffer.
func (c *Conn) reset() {
	c.unmap()
	if c.checkedIdx < c.readLen {
		c.readLen = copy(c.readBuf, c.readBuf[c.checkedIdx:c.readLen])
	} else {
		c.readLen = 0
	}
	c.checkedIdx = 0
	c.startLine = 0
	c.lineEnd = 0
	c.state = stateRequestLine
	c.method, c.url, c.host, c.body = span{}, span{}, span{}, span{}
	c.keepAlive = false
	c.contentLength = 0
	c.resolved = false
	c.path = c.path[:0]
	c.stat = api.FileStat{}
	c.writeLen = 0
	c.iov = [2][]byte{}
	c.iovCount = 0
	c.bytesToSend = 0
	c.bytesSent = 0
}

func (c *Conn) unmap() {
	if c.file == nil {
		return
	}
	if err := c.file.Unmap(); err != nil {
		c.env.logger().Warn("unmap failed", zap.Int("fd", c.fd), zap.Error(err))
	}
	c.file = nil
}

// DrainRead reads until the socket would block, the buffer is full or the
// peer closes. Any byte received renews the idle deadline.
func (c *Conn) DrainRead() (ReadStatus, error) {
	if c.owner.Load() != ownerReactor {
		return ReadIOError, fmt.Errorf("read fd %d: %w", c.fd, api.ErrNotOwner)
	}
	if c.readLen >= len(c.readBuf) {
		return ReadIOError, fmt.Errorf("read fd %d: %w", c.fd, api.ErrReadBufferFull)
	}

	status := ReadWouldBlock
	var rerr error
	got := 0
	for {
		if c.readLen == len(c.readBuf) {
			status = ReadComplete
			break
		}
		n, err := unix.Read(c.fd, c.readBuf[c.readLen:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				break
			}
			status, rerr = ReadIOError, fmt.Errorf("read fd %d: %w", c.fd, err)
			break
		}
		if n == 0 {
			status, rerr = ReadPeerClosed, api.ErrPeerClosed
			break
		}
		c.readLen += n
		got += n
	}
	if got > 0 {
		c.env.Timers.Renew(c.timer, c.env.deadline())
	}
	return status, rerr
}

// Process runs the parser over the buffered bytes and, for a terminal
// outcome, assembles the response. It must only be called by the worker
// the connection was handed off to.
func (c *Conn) Process() Outcome {
	if c.owner.Load() != ownerWorker {
		c.next = NextClose
		c.outcome = InternalError
		return InternalError
	}

	// left in place if parsing panics
	c.next = NextClose

	o := c.processRead()
	if o == Incomplete {
		// A full buffer holding a partial request can never complete.
		if !c.resolved && c.readLen == len(c.readBuf) {
			o = BadRequest
		} else {
			c.next = NextRead
			c.outcome = o
			return o
		}
	}

	c.outcome = o
	if c.processWrite(o) {
		c.next = NextWrite
	} else {
		c.unmap()
		c.next = NextClose
	}
	c.env.Metrics.Response(o.Status())
	c.env.logger().Debug("request processed",
		zap.Int("fd", c.fd),
		zap.Stringer("outcome", o),
		zap.Bool("keep_alive", c.keepAlive))
	return o
}

// DrainWrite sends the pending response with scatter-gather writes.
func (c *Conn) DrainWrite() (WriteStatus, error) {
	if c.owner.Load() != ownerReactor {
		return WriteIOError, fmt.Errorf("write fd %d: %w", c.fd, api.ErrNotOwner)
	}
	for c.bytesToSend > 0 {
		n, err := unix.Writev(c.fd, c.iov[:c.iovCount])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return WriteWouldBlock, nil
			}
			c.unmap()
			return WriteIOError, fmt.Errorf("writev fd %d: %w", c.fd, err)
		}
		c.bytesSent += n
		c.bytesToSend -= n
		c.advance(n)
	}

	if c.keepAlive {
		c.reset()
		return WriteDone, nil
	}
	c.unmap()
	return WriteClose, nil
}

// ArmRead re-arms the oneshot registration for readability.
func (c *Conn) ArmRead() error {
	return c.arm(api.InterestRead)
}

// ArmWrite re-arms the oneshot registration for writability.
func (c *Conn) ArmWrite() error {
	return c.arm(api.InterestWrite)
}

func (c *Conn) arm(interest api.Interest) error {
	if c.owner.Load() != ownerReactor {
		return fmt.Errorf("arm fd %d: %w", c.fd, api.ErrNotOwner)
	}
	if !c.registered {
		return fmt.Errorf("arm fd %d: %w", c.fd, api.ErrConnectionClosed)
	}
	return c.env.Poller.Modify(c.fd, interest)
}

// Handoff transfers the connection from the reactor to a worker.
func (c *Conn) Handoff() error {
	if !c.owner.CompareAndSwap(ownerReactor, ownerWorker) {
		return fmt.Errorf("handoff fd %d: %w", c.fd, api.ErrNotOwner)
	}
	return nil
}

// Reclaim returns a connection from a worker to the reactor.
func (c *Conn) Reclaim() error {
	if !c.owner.CompareAndSwap(ownerWorker, ownerReactor) {
		return fmt.Errorf("reclaim fd %d: %w", c.fd, api.ErrNotOwner)
	}
	return nil
}

// Deregister removes the socket from the poller and drops its timer while a
// worker may still hold the connection. The connection is doomed: it must be
// closed once reclaimed.
func (c *Conn) Deregister() error {
	c.doomed = true
	c.env.Timers.Remove(c.timer)
	c.timer = concurrency.TimerID{}
	if !c.registered {
		return nil
	}
	c.registered = false
	if err := c.env.Poller.Remove(c.fd); err != nil {
		return fmt.Errorf("deregister fd %d: %w", c.fd, err)
	}
	return nil
}

// Close releases every resource held by the connection and frees the slot.
// reason is recorded in metrics.
func (c *Conn) Close(reason string) error {
	switch c.owner.Load() {
	case ownerNone:
		return nil
	case ownerWorker:
		return fmt.Errorf("close fd %d: %w", c.fd, api.ErrNotOwner)
	}

	var errs error
	if c.registered {
		c.registered = false
		if err := c.env.Poller.Remove(c.fd); err != nil {
			errs = errors.Join(errs, fmt.Errorf("remove fd %d: %w", c.fd, err))
		}
	}
	c.env.Timers.Remove(c.timer)
	c.timer = concurrency.TimerID{}
	c.unmap()
	if err := unix.Close(c.fd); err != nil {
		errs = errors.Join(errs, fmt.Errorf("close fd %d: %w", c.fd, err))
	}
	c.env.logger().Debug("connection closed", zap.Int("fd", c.fd), zap.String("reason", reason))
	c.owner.Store(ownerNone)
	c.fd = -1
	c.env.live--
	c.env.Metrics.Closed(reason)
	return errs
}

// Fd returns the socket descriptor, or -1 for a free slot.
func (c *Conn) Fd() int { return c.fd }

// Peer returns the remote address recorded at accept time.
func (c *Conn) Peer() netip.AddrPort { return c.peer }

// Live reports whether the slot holds an initialized connection.
func (c *Conn) Live() bool { return c.owner.Load() != ownerNone }

// Busy reports whether a worker currently owns the connection.
func (c *Conn) Busy() bool { return c.owner.Load() == ownerWorker }

// Doomed reports whether the connection expired while a worker held it.
func (c *Conn) Doomed() bool { return c.doomed }

// Next returns the action recorded by the last Process call.
func (c *Conn) Next() Next { return c.next }

// Outcome returns the result of the last Process call.
func (c *Conn) Outcome() Outcome { return c.outcome }

// KeepAlive reports whether the current request asked for keep-alive.
func (c *Conn) KeepAlive() bool { return c.keepAlive }

// Pending reports buffered bytes that have not been parsed yet, such as a
// pipelined request carried over by a keep-alive reset.
func (c *Conn) Pending() bool { return c.checkedIdx < c.readLen }

// Host returns a copy of the Host header value of the current request.
func (c *Conn) Host() string {
	if c.host.empty() {
		return ""
	}
	return string(c.bytesOf(c.host))
}

// URL returns a copy of the request target of the current request.
func (c *Conn) URL() string {
	return string(c.bytesOf(c.url))
}

// Header returns the assembled response header bytes. The slice is only
// valid until the next reset.
func (c *Conn) Header() []byte { return c.writeBuf[:c.writeLen] }

// BytesToSend returns the number of response bytes not yet written.
func (c *Conn) BytesToSend() int { return c.bytesToSend }
