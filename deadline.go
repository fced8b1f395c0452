// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"time"
)

// NoTimeout may be passed as a poll timeout to wait indefinitely. Any
// negative timeout has the same effect.
const NoTimeout time.Duration = -1

// nowFunc is a test seam.
var nowFunc = time.Now

// deadline is an absolute instant, on the monotonic clock, or infinite.
type deadline struct {
	at       time.Time
	infinite bool
}

// newDeadline derives a deadline from a relative timeout. Zero means now.
func newDeadline(now time.Time, timeout time.Duration) deadline {
	if timeout < 0 {
		return deadline{infinite: true}
	}
	return deadline{at: now.Add(timeout)}
}

// remaining returns the time left until the deadline, clamped to zero, or a
// negative duration if infinite.
func (d deadline) remaining(now time.Time) time.Duration {
	if d.infinite {
		return NoTimeout
	}
	return max(d.at.Sub(now), 0)
}

func (d deadline) expired(now time.Time) bool {
	return !d.infinite && !now.Before(d.at)
}

// millis converts a timeout to poll(2) milliseconds, rounding up so a wait
// never ends before the deadline. Negative means infinite.
func millis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := (timeout + time.Millisecond - 1) / time.Millisecond
	if ms > 1<<31-1 {
		return 1<<31 - 1
	}
	return int(ms)
}

// millisToTimeout converts a millisecond timeout, as accepted by
// [Poller.PollAsyncMillis].
func millisToTimeout(ms int) time.Duration {
	if ms < 0 {
		return NoTimeout
	}
	return time.Duration(ms) * time.Millisecond
}
