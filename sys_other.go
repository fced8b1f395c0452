// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !unix

package ospoll

import (
	"syscall"
	"time"
)

func errnoSentinel(syscall.Errno) error { return nil }

func pollFD(int, Interest, time.Duration) (Interest, int, error) { return 0, 0, ErrUnsupported }

func readFD(int, []byte) (int, error) { return 0, ErrUnsupported }

func writeFD(int, []byte) (int, error) { return 0, ErrUnsupported }

func closeFD(int) error { return ErrUnsupported }

func setNonblock(int) error { return ErrUnsupported }

func createPipe() (r, w int, err error) { return -1, -1, ErrUnsupported }

func pipeCapacity(int) (int, error) { return 0, ErrUnsupported }
