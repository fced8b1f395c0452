// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package ospoll

import (
	"io"

	"golang.org/x/sys/unix"
)

// readFD performs a single non-blocking read, retrying EINTR.
func readFD(fd int, b []byte) (int, error) {
	for {
		n, err := unix.Read(fd, b)
		switch err {
		case nil:
			if n == 0 && len(b) > 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, newSystemError(`read`, err)
		}
	}
}

// writeFD performs a single non-blocking write, retrying EINTR. Partial
// writes are not continued.
func writeFD(fd int, b []byte) (int, error) {
	for {
		n, err := unix.Write(fd, b)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, newSystemError(`write`, err)
		}
	}
}

// closeFD releases fd. EINTR is not retried: the fd is released regardless,
// and a retry could close an fd another goroutine just opened.
func closeFD(fd int) error {
	if err := unix.Close(fd); err != nil && err != unix.EINTR {
		return newSystemError(`close`, err)
	}
	return nil
}

func setNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return newSystemError(`fcntl`, err)
	}
	return nil
}
