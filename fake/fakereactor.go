// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-httpd/api"
)

// Registration is the last known state of a descriptor in a FakePoller.
type Registration struct {
	Interest api.Interest
	Mode     api.Mode
	Arms     int // number of Add/Modify calls
}

// FakePoller records registrations instead of talking to the kernel.
// Wait returns whatever was queued with Push.
type FakePoller struct {
	mu      sync.Mutex
	regs    map[int]*Registration
	pending []api.Event
	closed  bool
}

// NewFakePoller creates an empty poller.
func NewFakePoller() *FakePoller {
	return &FakePoller{regs: make(map[int]*Registration)}
}

func (p *FakePoller) Add(fd int, interest api.Interest, mode api.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.regs[fd]; ok {
		return fmt.Errorf("fake poller add fd %d: %w", fd, api.ErrInvalidArgument)
	}
	p.regs[fd] = &Registration{Interest: interest, Mode: mode, Arms: 1}
	return nil
}

func (p *FakePoller) Modify(fd int, interest api.Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	if !ok {
		return fmt.Errorf("fake poller mod fd %d: %w", fd, api.ErrNotExist)
	}
	r.Interest = interest
	r.Arms++
	return nil
}

func (p *FakePoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.regs[fd]; !ok {
		return fmt.Errorf("fake poller del fd %d: %w", fd, api.ErrNotExist)
	}
	delete(p.regs, fd)
	return nil
}

// Push queues events for the next Wait.
func (p *FakePoller) Push(evs ...api.Event) {
	p.mu.Lock()
	p.pending = append(p.pending, evs...)
	p.mu.Unlock()
}

func (p *FakePoller) Wait(events []api.Event, timeoutMs int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(events, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *FakePoller) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Registration returns a copy of fd's registration.
func (p *FakePoller) Registration(fd int) (Registration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	if !ok {
		return Registration{}, false
	}
	return *r, true
}

var _ api.Poller = (*FakePoller)(nil)
