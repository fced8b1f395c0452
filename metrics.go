// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-ospoll/eventloop"
)

// PollerMetrics is a snapshot of poll statistics, see [Poller.Metrics].
type PollerMetrics struct {
	// Suspension is the distribution of how long suspended polls waited,
	// from issue to settlement. Polls settled immediately are excluded.
	Suspension eventloop.LatencySnapshot

	// Polls is the number of PollAsync calls.
	Polls uint64

	// Immediate is the number of polls settled without suspending.
	Immediate uint64

	Ready     uint64
	TimedOut  uint64
	Cancelled uint64
	Failed    uint64

	// Retries counts interrupted readiness checks that were retried.
	Retries uint64

	// StaleWakeups counts reactor notifications that failed re-verification.
	StaleWakeups uint64
}

// pollerMetrics is the poller's collector, nil when disabled.
type pollerMetrics struct {
	suspension   eventloop.LatencyMetrics
	polls        atomic.Uint64
	immediate    atomic.Uint64
	ready        atomic.Uint64
	timedOut     atomic.Uint64
	cancelled    atomic.Uint64
	failed       atomic.Uint64
	retries      atomic.Uint64
	staleWakeups atomic.Uint64
}

func (m *pollerMetrics) recordSettle(state State, suspended bool, waited time.Duration) {
	if m == nil {
		return
	}
	switch state {
	case StateReady:
		m.ready.Add(1)
	case StateTimedOut:
		m.timedOut.Add(1)
	case StateCancelled:
		m.cancelled.Add(1)
	case StateFailed:
		m.failed.Add(1)
	}
	if suspended {
		m.suspension.Record(waited)
	} else {
		m.immediate.Add(1)
	}
}

func (m *pollerMetrics) snapshot() PollerMetrics {
	if m == nil {
		return PollerMetrics{}
	}
	return PollerMetrics{
		Suspension:   m.suspension.Sample(),
		Polls:        m.polls.Load(),
		Immediate:    m.immediate.Load(),
		Ready:        m.ready.Load(),
		TimedOut:     m.timedOut.Load(),
		Cancelled:    m.cancelled.Load(),
		Failed:       m.failed.Load(),
		Retries:      m.retries.Load(),
		StaleWakeups: m.staleWakeups.Load(),
	}
}
