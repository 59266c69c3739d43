//go:build !linux
// +build !linux

// File: server/pipe_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"os"
	"syscall"

	"github.com/momentics/hioload-httpd/api"
)

const (
	wakeAlarm = byte(14)
	wakeStop  = byte(15)
	wakeDone  = byte(0xff)
)

var (
	forwardedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	ignoredSignals   []os.Signal
)

func signalByte(os.Signal) byte { return wakeStop }

func newWakePipe() ([2]int, error) { return [2]int{-1, -1}, api.ErrNotSupported }

func writeWake(int, byte) error { return api.ErrNotSupported }

func readWake(int, []byte) (int, error) { return 0, api.ErrNotSupported }

func closeFd(int) error { return nil }
