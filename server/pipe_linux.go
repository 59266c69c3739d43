//go:build linux
// +build linux

// File: server/pipe_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"os"

	"github.com/momentics/hioload-httpd/api"
	"golang.org/x/sys/unix"
)

// Wake-up bytes. Signal-driven wake-ups carry the signal number.
const (
	wakeAlarm = byte(unix.SIGALRM)
	wakeStop  = byte(unix.SIGTERM)
	wakeDone  = byte(0xff)
)

var (
	forwardedSignals = []os.Signal{unix.SIGTERM, unix.SIGINT, unix.SIGALRM}
	ignoredSignals   = []os.Signal{unix.SIGPIPE}
)

func signalByte(sig os.Signal) byte {
	if sig == unix.SIGALRM {
		return wakeAlarm
	}
	return wakeStop
}

func newWakePipe() ([2]int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return [2]int{-1, -1}, fmt.Errorf("socketpair: %w", err)
	}
	return [2]int{fds[0], fds[1]}, nil
}

func writeWake(fd int, b byte) error {
	buf := [1]byte{b}
	for {
		_, err := unix.Write(fd, buf[:])
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return api.ErrWouldBlock
		default:
			return err
		}
	}
}

// readWake reads pending wake-up bytes. An empty pipe yields api.ErrWouldBlock.
func readWake(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, api.ErrWouldBlock
		default:
			return 0, err
		}
	}
}

func closeFd(fd int) error {
	return unix.Close(fd)
}
