// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

// State is the lifecycle state of a poll. All states other than
// [StatePending] are terminal.
type State int

const (
	// StatePending indicates the poll has not yet settled.
	StatePending State = iota

	// StateReady indicates the descriptor is ready for the requested interest.
	StateReady

	// StateTimedOut indicates the deadline passed without readiness.
	StateTimedOut

	// StateCancelled indicates the poll was abandoned, see [Outcome.Cause].
	StateCancelled

	// StateFailed indicates the poll could not complete, see [Outcome.Cause].
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateReady:
		return "Ready"
	case StateTimedOut:
		return "TimedOut"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Outcome is the result of a poll.
type Outcome struct {
	// Cause is set for StateFailed and StateCancelled.
	Cause error

	State State

	// Ready is a non-empty subset of the requested interest, iff State is
	// StateReady.
	Ready Interest
}

// Err returns nil for ready (or pending) outcomes, [ErrTimedOut] for timed
// out ones, and otherwise the cause.
func (o Outcome) Err() error {
	switch o.State {
	case StateTimedOut:
		return ErrTimedOut
	case StateFailed, StateCancelled:
		return o.Cause
	default:
		return nil
	}
}

// waitErr is the error reported alongside the outcome by [Pending.Wait] and
// [Pending.Then]. A timeout is an expected outcome, not an error.
func (o Outcome) waitErr() error {
	if o.State == StateTimedOut {
		return nil
	}
	return o.Err()
}
