// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for the readiness-notification set
// the reactor loop and connections register sockets with.

package api

// Interest selects which readiness a descriptor is armed for.
type Interest uint32

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Mode selects the notification discipline of a registration.
type Mode uint8

const (
	// ModeLevel reports readiness for as long as it persists. Used for
	// descriptors with a single privileged handler (listener, self-pipe).
	ModeLevel Mode = iota
	// ModeEdgeOneshot reports readiness once and disables the descriptor
	// until it is re-armed with Modify.
	ModeEdgeOneshot
)

// EventFlags describes what the kernel reported for a descriptor.
type EventFlags uint32

const (
	EventReadable EventFlags = 1 << iota
	EventWritable
	EventHangup // peer shutdown, hangup or error
)

// Event encapsulates the result of an OS-level readiness notification.
type Event struct {
	Fd    int
	Flags EventFlags
}

// Has reports whether all bits of f are set.
func (e Event) Has(f EventFlags) bool {
	return e.Flags&f == f
}

// Poller is the readiness-notification set owned by the reactor goroutine.
// Implementations are not required to be safe for concurrent use.
type Poller interface {
	// Add registers fd with the given interest and mode.
	Add(fd int, interest Interest, mode Mode) error

	// Modify re-arms an edge-triggered oneshot registration.
	Modify(fd int, interest Interest) error

	// Remove deregisters fd.
	Remove(fd int) error

	// Wait blocks up to timeoutMs (negative blocks forever) and fills events.
	// An interrupted wait returns zero events and no error.
	Wait(events []Event, timeoutMs int) (int, error)

	// Close releases the underlying poller handle.
	Close() error
}
