// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"fmt"
	"slices"
	"sync"
)

// Descriptor exclusively owns one non-blocking OS file descriptor.
//
// All methods are safe for concurrent use. Once closed, every operation
// fails with [ErrClosedDescriptor], and the fd number is never used again,
// even if the OS reassigns it.
type Descriptor struct {
	name string

	// pending polls, in registration order
	pending []*Pending

	fd     int
	mu     sync.Mutex
	closed bool
}

// NewDescriptor adopts fd, which is switched to non-blocking mode. The
// descriptor takes ownership, closing fd when it is closed.
func NewDescriptor(fd int, name string) (*Descriptor, error) {
	if fd < 0 {
		return nil, ErrInvalidDescriptor
	}
	if err := setNonblock(fd); err != nil {
		return nil, err
	}
	return newDescriptor(fd, name), nil
}

func newDescriptor(fd int, name string) *Descriptor {
	if name == `` {
		name = `fd`
	}
	return &Descriptor{name: name, fd: fd}
}

// Raw returns the underlying fd, which remains owned by the descriptor.
func (d *Descriptor) Raw() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return -1, ErrClosedDescriptor
	}
	return d.fd, nil
}

// Name returns the diagnostic name, which outlives Close.
func (d *Descriptor) Name() string {
	return d.name
}

func (d *Descriptor) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Sprintf("%s(closed)", d.name)
	}
	return fmt.Sprintf("%s(fd=%d)", d.name, d.fd)
}

// Closed reports whether [Descriptor.Close] has been called.
func (d *Descriptor) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close releases the fd. Polls pending on the descriptor are settled
// [StateFailed] with [ErrClosedDescriptor], and removed from their reactor,
// before the fd is released. Calling Close again is a no-op.
func (d *Descriptor) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, p := range pending {
		p.settle(Outcome{State: StateFailed, Cause: ErrClosedDescriptor})
	}

	return closeFD(d.fd)
}

// Close is shorthand for d.Close().
func Close(d *Descriptor) error {
	if d == nil {
		return ErrInvalidDescriptor
	}
	return d.Close()
}

// Read implements [io.Reader]. It never blocks, returning [ErrWouldBlock]
// if no data is available, and [io.EOF] once the peer has closed and the
// buffer is drained.
func (d *Descriptor) Read(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosedDescriptor
	}
	if len(b) == 0 {
		return 0, nil
	}
	return readFD(d.fd, b)
}

// Write implements [io.Writer]. It never blocks. A short write reports
// [ErrWouldBlock], as the remainder could not be accepted without blocking.
// See also [Write], which treats short writes as success.
func (d *Descriptor) Write(b []byte) (int, error) {
	n, err := d.write(b)
	if err == nil && n < len(b) {
		err = ErrWouldBlock
	}
	return n, err
}

func (d *Descriptor) write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosedDescriptor
	}
	if len(b) == 0 {
		return 0, nil
	}
	return writeFD(d.fd, b)
}

// attachLocked records a pending poll. Registration happens while mu is
// held, so Close always observes it.
func (d *Descriptor) attachLocked(p *Pending) {
	d.pending = append(d.pending, p)
}

func (d *Descriptor) detach(p *Pending) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.Index(d.pending, p); i >= 0 {
		d.pending = slices.Delete(d.pending, i, i+1)
	}
}

// checkReady performs an immediate readiness check.
func (d *Descriptor) checkReady(interest Interest) (Interest, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, 0, ErrClosedDescriptor
	}
	return pollFD(d.fd, interest, 0)
}
