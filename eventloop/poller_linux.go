// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package eventloop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FastPoller manages I/O readiness registration using epoll (Linux), in
// level-triggered mode.
//
// The interest table (see interest.go) is the source of truth; epoll is
// armed with the union of the registered events per fd.
type FastPoller struct { // betteralign:ignore
	eventBuf [256]unix.EpollEvent // Preallocated, only touched by PollIO
	table    interestTable
	epfd     int32
	closed   atomic.Bool
}

// Init initializes the epoll instance.
func (p *FastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = int32(epfd)
	return nil
}

// Close closes the epoll instance. Registrations are dropped.
func (p *FastPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.table.mu.Lock()
	p.table.fds = nil
	p.table.legacy = nil
	p.table.mu.Unlock()
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

// arm applies a change of the armed event union for fd. Must be called with
// the table lock held.
func (p *FastPoller) arm(fd int, prev, next IOEvents) error {
	switch {
	case next == 0:
		err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
		if err == unix.ENOENT || err == unix.EBADF {
			// already gone, e.g. the fd was closed
			return nil
		}
		return err
	case prev == 0:
		return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: eventsToEpoll(next),
			Fd:     int32(fd),
		})
	default:
		return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
			Events: eventsToEpoll(next),
			Fd:     int32(fd),
		})
	}
}

// PollIO waits up to timeoutMs (negative blocks indefinitely) and dispatches
// any ready events, in the order epoll reports them. An interrupted wait
// returns unix.EINTR, leaving the retry (with a recomputed timeout) to the
// caller.
func (p *FastPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 {
			continue
		}
		p.dispatch(fd, epollToEvents(p.eventBuf[i].Events))
	}

	return n, nil
}

// eventsToEpoll converts IOEvents to epoll event flags.
func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}

func isInterrupted(err error) bool { return err == unix.EINTR }
