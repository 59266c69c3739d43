// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics for the server: OpenTelemetry instruments for export,
// mirrored into a thread-safe registry that can be snapshotted locally.

package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrumentation scope reported to the meter provider.
const meterName = "github.com/momentics/hioload-httpd"

// Snapshot keys.
const (
	KeyAccepted  = "connections.accepted"
	KeyRejected  = "connections.rejected"
	KeyClosed    = "connections.closed"
	KeyLive      = "connections.live"
	KeyExpired   = "connections.expired"
	KeyDropped   = "requests.dropped"
	KeyResponses = "responses"
)

// MetricsRegistry holds mutable counters and gauges.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]int64
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]int64),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value int64) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Add increments key by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	mr.mu.Lock()
	mr.metrics[key] += delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Get returns a single metric.
func (mr *MetricsRegistry) Get(key string) int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.metrics[key]
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Updated returns when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// Metrics records server events. A nil *Metrics discards everything.
type Metrics struct {
	ctx       context.Context
	accepted  metric.Int64Counter
	rejected  metric.Int64Counter
	closed    metric.Int64Counter
	expired   metric.Int64Counter
	dropped   metric.Int64Counter
	responses metric.Int64Counter
	live      metric.Int64UpDownCounter
	registry  *MetricsRegistry
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{ctx: context.Background(), registry: NewMetricsRegistry()}

	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	m.accepted = counter("hioload.connections.accepted", "Connections accepted by the reactor")
	m.rejected = counter("hioload.connections.rejected", "Connections refused at capacity")
	m.closed = counter("hioload.connections.closed", "Connections closed, by reason")
	m.expired = counter("hioload.connections.expired", "Connections evicted by the idle reaper")
	m.dropped = counter("hioload.requests.dropped", "Requests dropped because the work queue was full")
	m.responses = counter("hioload.responses", "Responses built, by status code")
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	m.live, err = meter.Int64UpDownCounter("hioload.connections.live", metric.WithDescription("Connections currently open"))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return m, nil
}

// Registry exposes the local mirror of the instruments.
func (m *Metrics) Registry() *MetricsRegistry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Snapshot returns the local counters.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m.registry.GetSnapshot()
}

// Accepted records a new live connection.
func (m *Metrics) Accepted() {
	if m == nil {
		return
	}
	m.accepted.Add(m.ctx, 1)
	m.live.Add(m.ctx, 1)
	m.registry.Add(KeyAccepted, 1)
	m.registry.Add(KeyLive, 1)
}

// Rejected records a connection refused at capacity.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Add(m.ctx, 1)
	m.registry.Add(KeyRejected, 1)
}

// Closed records the end of a live connection.
func (m *Metrics) Closed(reason string) {
	if m == nil {
		return
	}
	m.closed.Add(m.ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.live.Add(m.ctx, -1)
	m.registry.Add(KeyClosed, 1)
	m.registry.Add(KeyLive, -1)
}

// Expired records an idle-timeout eviction.
func (m *Metrics) Expired() {
	if m == nil {
		return
	}
	m.expired.Add(m.ctx, 1)
	m.registry.Add(KeyExpired, 1)
}

// Dropped records a work item refused by a full queue.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Add(m.ctx, 1)
	m.registry.Add(KeyDropped, 1)
}

// Response records a response with the given status code.
func (m *Metrics) Response(status int) {
	if m == nil {
		return
	}
	m.responses.Add(m.ctx, 1, metric.WithAttributes(attribute.Int("http.status_code", status)))
	m.registry.Add(fmt.Sprintf("%s.%d", KeyResponses, status), 1)
}
