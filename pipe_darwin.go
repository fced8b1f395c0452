// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin

package ospoll

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// darwinPipeCapacity is the largest buffer a darwin pipe grows to.
const darwinPipeCapacity = 64 * 1024

// createPipe returns a non-blocking, close-on-exec pipe. There is no pipe2,
// so the fork lock keeps the fds from leaking into a child before
// FD_CLOEXEC is set.
func createPipe() (r, w int, err error) {
	var fds [2]int
	syscall.ForkLock.RLock()
	if err := unix.Pipe(fds[:]); err != nil {
		syscall.ForkLock.RUnlock()
		return -1, -1, newSystemError(`pipe`, err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	syscall.ForkLock.RUnlock()

	for _, fd := range fds {
		if err := setNonblock(fd); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return -1, -1, err
		}
	}
	return fds[0], fds[1], nil
}

func pipeCapacity(int) (int, error) {
	return darwinPipeCapacity, nil
}
