// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	// Promises still pending at shutdown are rejected with this error.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrTimerNotFound is returned by CancelTimer if the timer already fired,
	// was cancelled, or never existed.
	ErrTimerNotFound = errors.New("eventloop: timer not found")

	// ErrUnsupported is returned on platforms without a reactor implementation.
	ErrUnsupported = errors.New("eventloop: platform not supported")
)

// I/O registration errors.
var (
	ErrFDOutOfRange        = errors.New("eventloop: fd out of range")
	ErrFDAlreadyRegistered = errors.New("eventloop: fd already registered")
	ErrFDNotRegistered     = errors.New("eventloop: fd not registered")
	ErrInterestNotFound    = errors.New("eventloop: interest not registered")
	ErrInvalidEvents       = errors.New("eventloop: no read or write events requested")
	ErrPollerClosed        = errors.New("eventloop: poller closed")
)

// PanicError wraps a value recovered from a panicking task or callback.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: task panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
