// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package ospoll

import (
	"golang.org/x/sys/unix"
)

// createPipe returns a non-blocking, close-on-exec pipe, atomically.
func createPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, newSystemError(`pipe2`, err)
	}
	return fds[0], fds[1], nil
}

func pipeCapacity(fd int) (int, error) {
	n, err := unix.FcntlInt(uintptr(fd), unix.F_GETPIPE_SZ, 0)
	if err != nil {
		return 0, newSystemError(`fcntl`, err)
	}
	return n, nil
}
