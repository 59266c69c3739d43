// File: internal/httpconn/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package httpconn implements the per-socket HTTP/1.1 state machine: a
// non-blocking read drain, an incremental line-oriented request parser whose
// fields are offset spans into the connection's read buffer, static-file
// resolution against a document root, and a scatter-gather response writer.
//
// A Conn is owned either by the reactor goroutine or by exactly one worker.
// Ownership moves with Handoff and Reclaim; Process refuses to run unless it
// was handed off, and the drains refuse to run while it is.
package httpconn
