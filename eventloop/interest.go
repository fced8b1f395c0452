// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"slices"
	"strings"
	"sync"
)

// MaxFDLimit is the largest file descriptor value accepted for registration.
const MaxFDLimit = 100000000

// IOEvents represents the type of I/O events to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// String returns a `|` separated list of the set event names.
func (e IOEvents) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	if e&EventRead != 0 {
		parts = append(parts, "read")
	}
	if e&EventWrite != 0 {
		parts = append(parts, "write")
	}
	if e&EventError != 0 {
		parts = append(parts, "error")
	}
	if e&EventHangup != 0 {
		parts = append(parts, "hangup")
	}
	return strings.Join(parts, "|")
}

// satisfies reports whether a notification carrying got is relevant to an
// interest in e. Error and hangup conditions satisfy any interest, since
// the next read or write on the descriptor will not block.
func (e IOEvents) satisfies(got IOEvents) bool {
	return got&e != 0 || got&(EventError|EventHangup) != 0
}

// IOCallback is the callback type for I/O events.
type IOCallback func(IOEvents)

// InterestID identifies one registration in the interest table. IDs are
// never reused for the lifetime of a loop.
type InterestID uint64

type interestEntry struct {
	cb     IOCallback
	id     InterestID
	events IOEvents
}

// fdInterests is the registration list for one fd, in registration order.
type fdInterests struct {
	entries []interestEntry
	// armed is the union of entries[*].events, as last applied to the OS
	armed IOEvents
}

// interestTable is the registration table shared by all reactor backends.
// All mutations (and the matching OS arm calls) happen under mu.
type interestTable struct {
	fds    map[int]*fdInterests
	legacy map[int]InterestID // RegisterFD compatibility
	nextID InterestID
	mu     sync.Mutex
}

func unionEvents(entries []interestEntry) (events IOEvents) {
	for _, e := range entries {
		events |= e.events
	}
	return
}

// RegisterInterest adds a registration for fd. Multiple registrations for the
// same fd are independent; the OS is armed with the union of their events.
// THREAD SAFE.
func (p *FastPoller) RegisterInterest(fd int, events IOEvents, cb IOCallback) (InterestID, error) {
	if fd < 0 || fd >= MaxFDLimit {
		return 0, ErrFDOutOfRange
	}
	events &= EventRead | EventWrite
	if events == 0 {
		return 0, ErrInvalidEvents
	}
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	return p.registerLocked(fd, events, cb)
}

func (p *FastPoller) registerLocked(fd int, events IOEvents, cb IOCallback) (InterestID, error) {
	t := &p.table
	info := t.fds[fd]
	if info == nil {
		info = &fdInterests{}
	}

	if next := info.armed | events; next != info.armed {
		if err := p.arm(fd, info.armed, next); err != nil {
			return 0, err
		}
		info.armed = next
	}

	if t.fds == nil {
		t.fds = make(map[int]*fdInterests)
	}
	t.fds[fd] = info

	t.nextID++
	id := t.nextID
	info.entries = append(info.entries, interestEntry{id: id, events: events, cb: cb})
	return id, nil
}

// DeregisterInterest removes a single registration. Once it returns, the
// registration's callback will not be invoked by any subsequent dispatch.
// THREAD SAFE.
func (p *FastPoller) DeregisterInterest(fd int, id InterestID) error {
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	return p.deregisterLocked(fd, id)
}

func (p *FastPoller) deregisterLocked(fd int, id InterestID) error {
	t := &p.table
	info := t.fds[fd]
	if info == nil {
		return ErrInterestNotFound
	}
	idx := slices.IndexFunc(info.entries, func(e interestEntry) bool { return e.id == id })
	if idx < 0 {
		return ErrInterestNotFound
	}
	info.entries = slices.Delete(info.entries, idx, idx+1)
	return p.rearmLocked(fd, info)
}

// rearmLocked brings the OS registration in line with info.entries.
func (p *FastPoller) rearmLocked(fd int, info *fdInterests) error {
	var err error
	if next := unionEvents(info.entries); next != info.armed {
		if !p.closed.Load() {
			err = p.arm(fd, info.armed, next)
		}
		// removal failures (fd already closed) still leave nothing armed
		if err == nil || next == 0 {
			info.armed = next
		}
	}
	if len(info.entries) == 0 {
		delete(p.table.fds, fd)
	}
	return err
}

// lookup returns the callback for a registration that is still live.
func (p *FastPoller) lookup(fd int, id InterestID) IOCallback {
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	if info := p.table.fds[fd]; info != nil {
		for _, e := range info.entries {
			if e.id == id {
				return e.cb
			}
		}
	}
	return nil
}

// dispatch invokes, in registration order, every live registration on fd
// that the reported events satisfy. Callbacks run outside the table lock,
// and each is re-checked immediately before invocation, so a registration
// removed by an earlier callback in the same pass is never fired.
func (p *FastPoller) dispatch(fd int, events IOEvents) {
	var buf [8]InterestID
	ids := buf[:0]

	p.table.mu.Lock()
	if info := p.table.fds[fd]; info != nil {
		for _, e := range info.entries {
			if e.events.satisfies(events) {
				ids = append(ids, e.id)
			}
		}
	}
	p.table.mu.Unlock()

	for _, id := range ids {
		if cb := p.lookup(fd, id); cb != nil {
			cb(events)
		}
	}
}

// RegisterFD registers a single callback for fd, failing if fd already has
// any registration. Prefer [FastPoller.RegisterInterest].
func (p *FastPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}
	events &= EventRead | EventWrite
	if events == 0 {
		return ErrInvalidEvents
	}
	if p.closed.Load() {
		return ErrPollerClosed
	}

	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	if info := p.table.fds[fd]; info != nil && len(info.entries) != 0 {
		return ErrFDAlreadyRegistered
	}
	id, err := p.registerLocked(fd, events, cb)
	if err != nil {
		return err
	}
	if p.table.legacy == nil {
		p.table.legacy = make(map[int]InterestID)
	}
	p.table.legacy[fd] = id
	return nil
}

// UnregisterFD removes a registration made by RegisterFD.
//
// Always call UnregisterFD before closing a file descriptor, to prevent
// stale event delivery due to FD recycling.
func (p *FastPoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	id, ok := p.table.legacy[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	delete(p.table.legacy, fd)
	return p.deregisterLocked(fd, id)
}

// ModifyFD updates the events monitored for a registration made by RegisterFD.
func (p *FastPoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}
	events &= EventRead | EventWrite
	if events == 0 {
		return ErrInvalidEvents
	}
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	id, ok := p.table.legacy[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	info := p.table.fds[fd]
	if info == nil {
		delete(p.table.legacy, fd)
		return ErrFDNotRegistered
	}
	for i := range info.entries {
		if info.entries[i].id == id {
			info.entries[i].events = events
		}
	}
	return p.rearmLocked(fd, info)
}

