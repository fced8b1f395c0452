// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package ospoll

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollFunc is a test seam.
var pollFunc = unix.Poll

// pollFD checks the readiness of fd with poll(2), waiting up to timeout
// (negative for infinite, zero for an immediate check). Interrupted waits are
// retried with the remaining time, recomputed from the monotonic clock, and
// the number of retries is returned for diagnostics.
//
// Error and hangup conditions satisfy the whole interest, since the next
// read or write will not block. An fd the OS does not recognise reports
// [ErrInvalidDescriptor].
func pollFD(fd int, interest Interest, timeout time.Duration) (ready Interest, retries int, err error) {
	var events int16
	if interest&Readable != 0 {
		events |= unix.POLLIN
	}
	if interest&Writable != 0 {
		events |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	dl := newDeadline(nowFunc(), timeout)

	for {
		fds[0].Revents = 0
		n, err := pollFunc(fds, millis(dl.remaining(nowFunc())))
		if err == unix.EINTR {
			retries++
			continue
		}
		if err != nil {
			return 0, retries, newSystemError(`poll`, err)
		}
		if n == 0 {
			return 0, retries, nil
		}
		ready, err = reventsToInterest(fds[0].Revents, interest)
		return ready, retries, err
	}
}

func reventsToInterest(revents int16, interest Interest) (ready Interest, err error) {
	if revents&unix.POLLNVAL != 0 {
		return 0, ErrInvalidDescriptor
	}
	if revents&(unix.POLLHUP|unix.POLLERR) != 0 {
		return interest, nil
	}
	if revents&unix.POLLIN != 0 {
		ready |= Readable
	}
	if revents&unix.POLLOUT != 0 {
		ready |= Writable
	}
	return ready & interest, nil
}
