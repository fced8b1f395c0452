// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin

package eventloop

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// newWakeFds creates a non-blocking, close-on-exec self-pipe used to
// interrupt the multiplexer.
func newWakeFds() (readFd, writeFd int, err error) {
	var fds [2]int
	syscall.ForkLock.RLock()
	err = unix.Pipe(fds[:])
	if err == nil {
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, -1, err
	}
	for _, fd := range fds {
		if err = unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return -1, -1, err
		}
	}
	return fds[0], fds[1], nil
}

// signalWake writes a single byte. EAGAIN (pipe full) means a wake is
// already pending.
func signalWake(writeFd int) error {
	_, err := unix.Write(writeFd, []byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// drainWake empties the self-pipe.
func drainWake(readFd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(readFd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}

func closeWakeFds(readFd, writeFd int) {
	_ = unix.Close(readFd)
	_ = unix.Close(writeFd)
}
