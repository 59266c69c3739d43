// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components that can be asked to stop
// from any goroutine.
type GracefulShutdown interface {
	// Shutdown requests an orderly stop and releases owned resources.
	// It must be safe to call more than once.
	Shutdown() error
}
