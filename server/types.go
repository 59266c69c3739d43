// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/internal/httpconn"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("server already running")

// Config holds all server-side configuration parameters.
type Config struct {
	Host              string        `mapstructure:"host"`                // bind address, empty for all IPv4 addresses
	Port              int           `mapstructure:"port"`                // TCP port, 0 picks an ephemeral one
	DocRoot           string        `mapstructure:"docroot"`             // directory request targets resolve against
	Workers           int           `mapstructure:"workers"`             // worker goroutines
	MaxRequests       int           `mapstructure:"max_requests"`        // work queue depth
	MaxConnections    int           `mapstructure:"max_connections"`     // live connection cap
	MaxFD             int           `mapstructure:"max_fd"`              // connection slot table size
	MaxEvents         int           `mapstructure:"max_events"`          // readiness events per wait
	Backlog           int           `mapstructure:"backlog"`             // listen queue length
	TimeSlot          time.Duration `mapstructure:"time_slot"`           // idle sweep period
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`        // inactivity before a connection is reaped
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`    // per-connection request buffer
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`   // per-connection header buffer
	MaxPathLen        int           `mapstructure:"max_path_len"`        // docroot + target length limit
	NotFoundResponses bool          `mapstructure:"not_found_responses"` // answer 404 for missing files
	PinWorkers        bool          `mapstructure:"pin_workers"`         // bind each worker to one CPU
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	const slot = 5 * time.Second
	return Config{
		DocRoot:         "./resources",
		Workers:         8,
		MaxRequests:     10000,
		MaxConnections:  65535,
		MaxFD:           65535,
		MaxEvents:       10000,
		Backlog:         128,
		TimeSlot:        slot,
		IdleTimeout:     3 * slot,
		ReadBufferSize:  httpconn.DefaultReadBufferSize,
		WriteBufferSize: httpconn.DefaultWriteBufferSize,
		MaxPathLen:      httpconn.DefaultMaxPathLen,
	}
}

// Validate rejects configurations the reactor cannot run with.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"workers", c.Workers},
		{"max_requests", c.MaxRequests},
		{"max_connections", c.MaxConnections},
		{"max_fd", c.MaxFD},
		{"max_events", c.MaxEvents},
		{"backlog", c.Backlog},
		{"read_buffer_size", c.ReadBufferSize},
		{"write_buffer_size", c.WriteBufferSize},
		{"max_path_len", c.MaxPathLen},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return api.NewError(api.ErrCodeInvalidArgument, "config value must be positive").
				WithContext("key", p.name).
				WithContext("value", p.value)
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return api.NewError(api.ErrCodeInvalidArgument, "port out of range").
			WithContext("key", "port").
			WithContext("value", c.Port)
	}
	if c.TimeSlot <= 0 || c.IdleTimeout <= 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "time_slot and idle_timeout must be positive").
			WithContext("time_slot", c.TimeSlot).
			WithContext("idle_timeout", c.IdleTimeout)
	}
	if c.DocRoot == "" {
		return api.NewError(api.ErrCodeInvalidArgument, "docroot must be set").
			WithContext("key", "docroot")
	}
	return nil
}
