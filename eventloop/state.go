// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
//	StateAwake       → StateRunning      [Run]
//	StateRunning     → StateSleeping     [poll]
//	StateSleeping    → StateRunning      [poll returns]
//	StateRunning     → StateTerminating  [Shutdown, Close, ctx done]
//	StateSleeping    → StateTerminating  [Shutdown, Close, ctx done]
//	StateAwake       → StateTerminated   [Shutdown, Close before Run]
//	StateTerminating → StateTerminated   [drain complete]
//
// Running and Sleeping are only ever entered via CAS, Terminated is only
// ever stored.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateTerminated indicates the loop has been stopped and is fully shut down.
	StateTerminated
	// StateSleeping indicates the loop is blocked in the multiplexer.
	StateSleeping
	// StateRunning indicates the loop is actively processing work.
	StateRunning
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is the atomic holder for a [LoopState].
type loopState struct {
	v atomic.Uint64
}

func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *loopState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// acceptsWork reports whether Submit and friends should still enqueue.
// Terminating is included so that in-flight work can drain.
func (s *loopState) acceptsWork() bool {
	return s.Load() != StateTerminated
}

func (s *loopState) stopping() bool {
	state := s.Load()
	return state == StateTerminating || state == StateTerminated
}
