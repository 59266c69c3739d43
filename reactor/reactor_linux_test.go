//go:build linux
// +build linux

package reactor_test

import (
	"testing"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestOneshotReportsOnceUntilRearmed(t *testing.T) {
	p, err := reactor.New(16)
	require.NoError(t, err)
	defer p.Close()

	a, b := socketpair(t)
	require.NoError(t, p.Add(a, api.InterestRead, api.ModeEdgeOneshot))

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events := make([]api.Event, 16)
	n, err := p.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, a, events[0].Fd)
	assert.True(t, events[0].Has(api.EventReadable))

	// More data must not produce an event while the registration is disarmed.
	_, err = unix.Write(b, []byte("y"))
	require.NoError(t, err)
	n, err = p.Wait(events, 50)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, p.Modify(a, api.InterestRead))
	n, err = p.Wait(events, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLevelRegistrationKeepsReporting(t *testing.T) {
	p, err := reactor.New(16)
	require.NoError(t, err)
	defer p.Close()

	a, b := socketpair(t)
	require.NoError(t, p.Add(a, api.InterestRead, api.ModeLevel))
	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events := make([]api.Event, 16)
	for i := 0; i < 2; i++ {
		n, err := p.Wait(events, 1000)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestHangupAndRemove(t *testing.T) {
	p, err := reactor.New(16)
	require.NoError(t, err)
	defer p.Close()

	a, b := socketpair(t)
	require.NoError(t, p.Add(a, api.InterestRead, api.ModeEdgeOneshot))
	require.NoError(t, unix.Shutdown(b, unix.SHUT_WR))

	events := make([]api.Event, 16)
	n, err := p.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.True(t, events[0].Has(api.EventHangup))

	require.NoError(t, p.Remove(a))
	assert.Error(t, p.Remove(a))
}

func TestNewRejectsEmptyBatch(t *testing.T) {
	_, err := reactor.New(0)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
