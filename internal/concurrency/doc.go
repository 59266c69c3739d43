// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-httpd: a bounded FIFO worker pool that
// hands each queued item to exactly one worker goroutine, a sorted timer
// list with stable handles used as the idle-connection reaper, and optional
// CPU pinning of worker threads.
package concurrency
