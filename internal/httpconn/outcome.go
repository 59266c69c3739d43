// File: internal/httpconn/outcome.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpconn

// Outcome is the result of running the request pipeline once.
type Outcome uint8

const (
	// Incomplete means more bytes are needed (or, in legacy mode, that the
	// target does not exist).
	Incomplete Outcome = iota
	BadRequest
	Forbidden
	NotFound
	Ok
	InternalError
)

func (o Outcome) String() string {
	switch o {
	case Incomplete:
		return "incomplete"
	case BadRequest:
		return "bad_request"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Ok:
		return "ok"
	case InternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status code answered for o, or 0 when no
// response is produced.
func (o Outcome) Status() int {
	switch o {
	case BadRequest:
		return 400
	case Forbidden:
		return 403
	case NotFound:
		return 404
	case Ok:
		return 200
	case InternalError:
		return 500
	default:
		return 0
	}
}

// ReadStatus is the result of DrainRead.
type ReadStatus uint8

const (
	ReadWouldBlock ReadStatus = iota // kernel buffer drained, more may come
	ReadComplete                     // read buffer filled up
	ReadPeerClosed
	ReadIOError
)

func (s ReadStatus) String() string {
	switch s {
	case ReadWouldBlock:
		return "would_block"
	case ReadComplete:
		return "complete"
	case ReadPeerClosed:
		return "peer_closed"
	default:
		return "io_error"
	}
}

// Ok reports whether the connection should be handed to a worker.
func (s ReadStatus) Ok() bool {
	return s == ReadWouldBlock || s == ReadComplete
}

// WriteStatus is the result of DrainWrite.
type WriteStatus uint8

const (
	WriteDone       WriteStatus = iota // response sent, state reset for the next keep-alive request
	WriteClose                         // response sent, connection must be closed
	WriteWouldBlock                    // partial write, re-arm for write readiness
	WriteIOError
)

func (s WriteStatus) String() string {
	switch s {
	case WriteDone:
		return "done"
	case WriteClose:
		return "close"
	case WriteWouldBlock:
		return "would_block"
	default:
		return "io_error"
	}
}

// Next is what the reactor must do once a worker hands the connection back.
type Next uint8

const (
	NextRead Next = iota
	NextWrite
	NextClose
)

func (n Next) String() string {
	switch n {
	case NextRead:
		return "read"
	case NextWrite:
		return "write"
	default:
		return "close"
	}
}
