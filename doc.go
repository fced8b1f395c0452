// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package ospoll implements asynchronous readiness polling of pipe
// descriptors, suspending on a cooperative, single goroutine scheduler,
// rather than blocking a thread.
//
// Descriptors are non-blocking. [Read] and [Write] return
// [ErrWouldBlock] instead of waiting, and [Poller.PollAsync] is the only
// operation that waits, returning a [Pending] future, which settles on the
// scheduler's goroutine once the descriptor is ready, or its deadline
// passes. Readiness is level-triggered: a descriptor that is already ready
// settles immediately.
//
// The scheduler is provided by package [eventloop]:
//
//	loop, _ := eventloop.New()
//	poller, _ := ospoll.NewPoller(loop)
//	pipe, _ := ospoll.CreatePipe()
//	go loop.Run(ctx)
//
//	_ = loop.Submit(func() {
//		poller.PollAsync(ctx, pipe.ReadEnd, ospoll.Readable, time.Second).
//			Then(func(o ospoll.Outcome, err error) {
//				if o.State == ospoll.StateReady {
//					b, err := ospoll.Read(pipe.ReadEnd, 4096)
//					// ...
//				}
//			})
//	})
//
// Linux and Darwin are supported. Elsewhere, [CreatePipe] returns
// [ErrUnsupported].
package ospoll
