// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package eventloop

import (
	"golang.org/x/sys/unix"
)

// newWakeFds creates a non-blocking eventfd used to interrupt the
// multiplexer. The single fd serves as both the read and the write end.
func newWakeFds() (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}

// signalWake bumps the eventfd counter. EAGAIN (counter saturated) means a
// wake is already pending.
func signalWake(writeFd int) error {
	var one = [8]byte{1}
	_, err := unix.Write(writeFd, one[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// drainWake resets the eventfd counter.
func drainWake(readFd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(readFd, buf[:]); err != unix.EINTR {
			return
		}
	}
}

func closeWakeFds(readFd, writeFd int) {
	_ = unix.Close(readFd)
	_ = writeFd
}
