// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"time"

	"github.com/joeycumines/logiface"
)

func pollerLogger(logger *logiface.Logger[logiface.Event]) *logiface.Logger[logiface.Event] {
	if logger == nil {
		return nil
	}
	return logger.Clone().
		Str(`component`, `ospoll`).
		Logger()
}

// allowLog applies the per-category rate limit to noisy diagnostics.
func (x *Poller) allowLog(category string) bool {
	if x.logger == nil {
		return false
	}
	if x.limiter == nil {
		return true
	}
	_, ok := x.limiter.Allow(category)
	return ok
}

// logClosedPending reports a suspended poll failed by closing its
// descriptor, usually a reader or writer abandoned by its owner.
func (x *Poller) logClosedPending(p *Pending) {
	x.logger.Info().
		Str(`fd`, p.d.Name()).
		Int(`raw`, p.fd).
		Str(`interest`, p.interest.String()).
		Log(`descriptor closed with pending poll`)
}

func (x *Poller) logSettle(p *Pending, o Outcome, waited time.Duration) {
	b := x.logger.Debug()
	if p.d != nil {
		b = b.Str(`fd`, p.d.Name())
	}
	if o.Cause != nil {
		b = b.Err(o.Cause)
	}
	b.Str(`interest`, p.interest.String()).
		Str(`state`, o.State.String()).
		Str(`ready`, o.Ready.String()).
		Dur(`waited`, waited).
		Log(`poll settled`)
}
