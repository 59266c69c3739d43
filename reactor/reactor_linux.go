//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller implementation and factory.

package reactor

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-httpd/api"
	"golang.org/x/sys/unix"
)

// epollPoller is an epoll-based api.Poller.
type epollPoller struct {
	epfd int
	raw  []unix.EpollEvent
}

// New constructs the epoll poller. maxEvents bounds the batch returned by one Wait.
func New(maxEvents int) (api.Poller, error) {
	if maxEvents <= 0 {
		return nil, fmt.Errorf("epoll create: max events %d: %w", maxEvents, api.ErrInvalidArgument)
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollPoller{
		epfd: epfd,
		raw:  make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Add registers fd with the epoll interest list.
func (p *epollPoller) Add(fd int, interest api.Interest, mode api.Mode) error {
	ev := unix.EpollEvent{Events: mask(interest, mode), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Modify re-arms a oneshot registration with a new interest.
func (p *epollPoller) Modify(fd int, interest api.Interest) error {
	ev := unix.EpollEvent{Events: mask(interest, api.ModeEdgeOneshot), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

// Remove deregisters fd.
func (p *epollPoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks and translates kernel events into api.Event values.
func (p *epollPoller) Wait(events []api.Event, timeoutMs int) (int, error) {
	raw := p.raw
	if len(events) < len(raw) {
		raw = raw[:len(events)]
	}
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		events[i] = api.Event{Fd: int(raw[i].Fd), Flags: flags(raw[i].Events)}
	}
	return n, nil
}

// Close releases the epoll file descriptor.
func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

func mask(interest api.Interest, mode api.Mode) uint32 {
	var m uint32
	if interest&api.InterestRead != 0 {
		m |= unix.EPOLLIN
	}
	if interest&api.InterestWrite != 0 {
		m |= unix.EPOLLOUT
	}
	if mode == api.ModeEdgeOneshot {
		m |= unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP
	}
	return m
}

func flags(ev uint32) api.EventFlags {
	var f api.EventFlags
	if ev&unix.EPOLLIN != 0 {
		f |= api.EventReadable
	}
	if ev&unix.EPOLLOUT != 0 {
		f |= api.EventWritable
	}
	if ev&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		f |= api.EventHangup
	}
	return f
}
