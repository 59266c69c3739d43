// File: internal/concurrency/affinity_other.go
//go:build !linux
// +build !linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "github.com/momentics/hioload-httpd/api"

// PinCurrentThread is not supported on this platform.
func PinCurrentThread(cpu int) error {
	return api.ErrNotSupported
}

// CurrentCPUs is not supported on this platform.
func CurrentCPUs() ([]int, error) {
	return nil, api.ErrNotSupported
}
