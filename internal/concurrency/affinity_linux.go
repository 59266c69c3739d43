// File: internal/concurrency/affinity_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU pinning through sched_setaffinity, without cgo.

package concurrency

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-httpd/api"
	"golang.org/x/sys/unix"
)

// cpuSetSize is CPU_SETSIZE, the number of CPUs a unix.CPUSet can address.
const cpuSetSize = 1024

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to cpu. The lock is kept on success.
func PinCurrentThread(cpu int) error {
	var set unix.CPUSet
	if cpu < 0 || cpu >= cpuSetSize {
		return fmt.Errorf("pin cpu %d: %w", cpu, api.ErrInvalidArgument)
	}
	runtime.LockOSThread()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}

// CurrentCPUs returns the CPUs the calling thread may run on.
func CurrentCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}
	cpus := make([]int, 0, set.Count())
	for i := 0; i < cpuSetSize && len(cpus) < cap(cpus); i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
