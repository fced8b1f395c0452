// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux && !darwin

package eventloop

import (
	"sync/atomic"
)

// FastPoller is unavailable on this platform. All methods fail with
// [ErrUnsupported].
type FastPoller struct {
	table  interestTable
	closed atomic.Bool
}

func (p *FastPoller) Init() error { return ErrUnsupported }

func (p *FastPoller) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *FastPoller) arm(int, IOEvents, IOEvents) error { return ErrUnsupported }

func (p *FastPoller) PollIO(int) (int, error) { return 0, ErrUnsupported }

func newWakeFds() (int, int, error) { return -1, -1, ErrUnsupported }

func signalWake(int) error { return ErrUnsupported }

func drainWake(int) {}

func closeWakeFds(int, int) {}

func isInterrupted(error) bool { return false }
