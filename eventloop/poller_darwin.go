// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin

package eventloop

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// FastPoller manages I/O readiness registration using kqueue (Darwin).
// Filters are added without EV_CLEAR, i.e. level-triggered.
type FastPoller struct { // betteralign:ignore
	eventBuf [256]unix.Kevent_t // Preallocated, only touched by PollIO
	table    interestTable
	kq       int32
	closed   atomic.Bool
}

// Init initializes the kqueue instance.
func (p *FastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = int32(kq)
	return nil
}

// Close closes the kqueue instance. Registrations are dropped.
func (p *FastPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.table.mu.Lock()
	p.table.fds = nil
	p.table.legacy = nil
	p.table.mu.Unlock()
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

// arm applies a change of the armed event union for fd, one filter at a
// time. Must be called with the table lock held.
func (p *FastPoller) arm(fd int, prev, next IOEvents) error {
	if added := next &^ prev; added != 0 {
		if _, err := unix.Kevent(int(p.kq), eventsToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE), nil, nil); err != nil {
			return err
		}
	}
	if removed := prev &^ next; removed != 0 {
		// errors ignored, the fd may already be closed (which drops its filters)
		_, _ = unix.Kevent(int(p.kq), eventsToKevents(fd, removed, unix.EV_DELETE), nil, nil)
	}
	return nil
}

// PollIO waits up to timeoutMs (negative blocks indefinitely) and dispatches
// any ready events, in the order kqueue reports them. An interrupted wait
// returns unix.EINTR.
func (p *FastPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(time.Duration(timeoutMs) * time.Millisecond))
		ts = &t
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		p.dispatch(int(p.eventBuf[i].Ident), keventToEvents(&p.eventBuf[i]))
	}

	return n, nil
}

// eventsToKevents converts IOEvents to kqueue kevent structures.
func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return kevents
}

// keventToEvents converts kqueue event to IOEvents.
func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}

func isInterrupted(err error) bool { return err == unix.EINTR }
