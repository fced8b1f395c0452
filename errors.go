// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

var (
	// ErrInvalidDescriptor indicates a descriptor that was never valid, e.g.
	// a negative fd, or one the OS does not recognise.
	ErrInvalidDescriptor = errors.New("ospoll: invalid descriptor")

	// ErrClosedDescriptor is returned by any operation on a closed
	// [Descriptor], and is the failure of polls pending when it closed.
	ErrClosedDescriptor = errors.New("ospoll: descriptor is closed")

	// ErrWouldBlock is returned by [Read] and [Write] when the operation
	// could not transfer any bytes without blocking.
	ErrWouldBlock = errors.New("ospoll: operation would block")

	// ErrTimedOut is [Outcome.Err] for a poll that reached its deadline.
	ErrTimedOut = errors.New("ospoll: poll timed out")

	// ErrBrokenPipe is matched by writes to a pipe whose read end is closed.
	ErrBrokenPipe = errors.New("ospoll: broken pipe")

	// ErrResourceExhausted is matched by failures due to descriptor or
	// memory limits (EMFILE, ENFILE, ENOMEM).
	ErrResourceExhausted = errors.New("ospoll: resource exhausted")

	// ErrInvalidInterest indicates an empty or unknown [Interest].
	ErrInvalidInterest = errors.New("ospoll: invalid interest")

	// ErrCancelled is the cause of a poll abandoned via [Pending.Cancel].
	ErrCancelled = errors.New("ospoll: poll cancelled")

	// ErrWaitOnLoop is returned by [Pending.Wait] when called on the loop
	// goroutine, where it could only deadlock. Use [Pending.Then] instead.
	ErrWaitOnLoop = errors.New("ospoll: cannot wait on the loop goroutine")

	// ErrUnsupported is returned on platforms without pipe support.
	ErrUnsupported = errors.New("ospoll: platform not supported")
)

// ErrEOF is the end of stream result of [Read]. It is not a failure.
var ErrEOF = io.EOF

// SystemError is an OS failure, carrying the operation and errno.
//
// It unwraps to the errno, so errors.Is(err, unix.EMFILE) works, and
// additionally matches the sentinel the errno maps to, e.g.
// [ErrResourceExhausted] or [ErrBrokenPipe].
type SystemError struct {
	Op    string
	Errno syscall.Errno
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("ospoll: %s: %s", e.Op, e.Errno.Error())
}

func (e *SystemError) Unwrap() error {
	return e.Errno
}

func (e *SystemError) Is(target error) bool {
	sentinel := errnoSentinel(e.Errno)
	return sentinel != nil && sentinel == target
}

func newSystemError(op string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &SystemError{Op: op, Errno: errno}
	}
	return fmt.Errorf("ospoll: %s: %w", op, err)
}
