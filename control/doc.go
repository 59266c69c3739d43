// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration loading, runtime metrics and debug introspection for hioload-httpd.
//
// Provides:
//   - Layered configuration (defaults, file, HIOLOAD_* environment, flags) via viper
//   - OpenTelemetry counters for connection and response events, mirrored into
//     a local snapshot registry
//   - Probe registration for dumping live runtime state
package control
