// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"github.com/joeycumines/logiface"
)

// loopLogger returns a sub-logger tagged with the loop's identity, or nil if
// logging is disabled.
func loopLogger(logger *logiface.Logger[logiface.Event], id uint64) *logiface.Logger[logiface.Event] {
	if logger == nil {
		return nil
	}
	return logger.Clone().
		Str(`component`, `eventloop`).
		Uint64(`loop`, id).
		Logger()
}

func (l *Loop) logPanic(where string, r any) {
	b := l.logger.Err()
	if err, ok := r.(error); ok {
		b = b.Err(err)
	} else {
		b = b.Interface(`panic`, r)
	}
	b.Str(`where`, where).
		Log(`recovered panic`)
}

func (l *Loop) logPollError(err error) {
	l.logger.Crit().
		Err(err).
		Log(`multiplexer wait failed, terminating loop`)
}
