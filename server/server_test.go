// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// End-to-end tests over loopback TCP against a temporary document root.

package server_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/control"
	"github.com/momentics/hioload-httpd/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const page = "<html><body>hioload</body></html>\n"

type testServer struct {
	srv  *server.Server
	root string
	addr string
	errc chan error
	stop context.CancelFunc
}

func start(t *testing.T, mutate func(*server.Config), opts ...server.ServerOption) *testServer {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte(page), 0o644))

	cfg := server.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.DocRoot = root
	cfg.Workers = 2
	cfg.MaxRequests = 64
	cfg.MaxConnections = 64
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := server.NewServer(cfg, append([]server.ServerOption{server.WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		srv:  srv,
		root: root,
		addr: net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.Port())),
		errc: make(chan error, 1),
		stop: cancel,
	}
	go func() { ts.errc <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-ts.errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", ts.addr, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestServeFileWithHTTPClient(t *testing.T) {
	ts := start(t, nil)

	resp, err := http.Get("http://" + ts.addr + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.EqualValues(t, len(page), resp.ContentLength)
	assert.Equal(t, page, string(body))
}

func TestKeepAliveServesSequentialRequests(t *testing.T) {
	ts := start(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "second.html"), []byte("two"), 0o644))
	c := ts.dial(t)
	r := bufio.NewReader(c)

	for _, tc := range []struct{ path, body string }{
		{"/index.html", page},
		{"/second.html", "two"},
		{"/index.html", page},
	} {
		_, err := fmt.Fprintf(c, "GET %s HTTP/1.1\r\nHost: test\r\nConnection: keep-alive\r\n\r\n", tc.path)
		require.NoError(t, err)
		resp, err := http.ReadResponse(r, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
		assert.Equal(t, tc.body, string(body))
	}
}

func TestPipelinedRequestsAnsweredInOrder(t *testing.T) {
	ts := start(t, func(cfg *server.Config) { cfg.PinWorkers = true })
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "a.html"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "b.html"), []byte("BB"), 0o644))
	c := ts.dial(t)

	_, err := io.WriteString(c, "GET /a.html HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"+
		"GET /b.html HTTP/1.1\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)

	r := bufio.NewReader(c)
	for _, want := range []string{"A", "BB"} {
		resp, err := http.ReadResponse(r, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, want, string(body))
	}
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF, "server closes after Connection: close")
}

func TestErrorResponses(t *testing.T) {
	ts := start(t, func(cfg *server.Config) { cfg.NotFoundResponses = true })
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "secret"), []byte("hidden"), 0o600))

	cases := []struct {
		request string
		status  int
		body    string
	}{
		{"GET /secret HTTP/1.1\r\n\r\n", 403, "You do not have permission to get file from this server.\n"},
		{"POST / HTTP/1.1\r\n\r\n", 400, "Your request has bad syntax or is inherently impossible to satisfy.\n"},
		{"GET /nope.html HTTP/1.1\r\n\r\n", 404, "The requested file was not found on this server.\n"},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			c := ts.dial(t)
			_, err := io.WriteString(c, tc.request)
			require.NoError(t, err)
			resp, err := http.ReadResponse(bufio.NewReader(c), nil)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.body, string(body))
			assert.Equal(t, "close", resp.Header.Get("Connection"))
		})
	}

	snap := ts.srv.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap["responses.403"])
	assert.EqualValues(t, 1, snap["responses.400"])
	assert.EqualValues(t, 1, snap["responses.404"])
}

func TestIdleConnectionIsReaped(t *testing.T) {
	ts := start(t, func(cfg *server.Config) {
		cfg.TimeSlot = 20 * time.Millisecond
		cfg.IdleTimeout = 60 * time.Millisecond
	})
	c := ts.dial(t)
	_, err := io.WriteString(c, "GET /index.html HT")
	require.NoError(t, err)

	begin := time.Now()
	_, err = c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.GreaterOrEqual(t, time.Since(begin), 40*time.Millisecond)

	require.Eventually(t, func() bool {
		snap := ts.srv.Metrics().Snapshot()
		return snap[control.KeyExpired] >= 1 && snap[control.KeyLive] == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweepFollowsInjectedClock(t *testing.T) {
	var skew atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	ts := start(t, func(cfg *server.Config) {
		cfg.TimeSlot = 20 * time.Millisecond
		cfg.IdleTimeout = time.Hour
	}, server.WithClock(clock))

	c := ts.dial(t)
	require.Eventually(t, func() bool {
		return ts.srv.Metrics().Snapshot()[control.KeyLive] == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 0, ts.srv.Metrics().Snapshot()[control.KeyExpired])

	skew.Store(int64(2 * time.Hour))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool {
		snap := ts.srv.Metrics().Snapshot()
		return snap[control.KeyExpired] == 1 && snap[control.KeyLive] == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionsBeyondCapacityAreRejected(t *testing.T) {
	ts := start(t, func(cfg *server.Config) { cfg.MaxConnections = 1 })

	first := ts.dial(t)
	require.Eventually(t, func() bool {
		return ts.srv.Metrics().Snapshot()[control.KeyLive] == 1
	}, 2*time.Second, 5*time.Millisecond)

	second := ts.dial(t)
	_, err := second.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.EqualValues(t, 1, ts.srv.Metrics().Snapshot()[control.KeyRejected])

	_, err = io.WriteString(first, "GET /index.html HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(first), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestShutdownStopsRun(t *testing.T) {
	ts := start(t, nil)
	c := ts.dial(t)

	require.NoError(t, ts.srv.Shutdown())
	select {
	case err := <-ts.errc:
		require.NoError(t, err)
		ts.errc <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	_, err := c.Read(make([]byte, 1))
	assert.Error(t, err, "live connections are closed on shutdown")
	assert.ErrorIs(t, ts.srv.Run(context.Background()), server.ErrAlreadyRunning)

	stats := ts.srv.Stats()
	assert.Contains(t, stats, "server.pool")
	assert.EqualValues(t, 0, stats["server.live_connections"])
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Workers = 0
	_, err := server.NewServer(cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "workers"), err.Error())
}
