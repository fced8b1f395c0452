// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package ospoll

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// errnoSentinel maps an errno to the sentinel it matches, or nil.
func errnoSentinel(errno syscall.Errno) error {
	switch errno {
	case unix.EMFILE, unix.ENFILE, unix.ENOMEM:
		return ErrResourceExhausted
	case unix.EPIPE:
		return ErrBrokenPipe
	case unix.EBADF:
		return ErrInvalidDescriptor
	case unix.EAGAIN:
		return ErrWouldBlock
	default:
		return nil
	}
}
