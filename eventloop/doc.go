// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package eventloop provides a single goroutine, cooperative event loop with
// timers, a task queue, settle-once promises, and level-triggered I/O
// readiness notification.
//
// # Architecture
//
// A [Loop] runs every task, timer callback, and I/O callback on one
// goroutine (locked to its OS thread). Work enters the loop via
// [Loop.Submit] (or [Loop.SubmitInternal], which takes priority), and via
// [Loop.ScheduleTimer] / [Loop.ScheduleTimerAt].
//
// I/O readiness is delivered by a reactor built on platform-native
// multiplexers:
//   - Linux: epoll
//   - Darwin: kqueue
//
// Unlike a classic one-callback-per-fd reactor, the registration table holds
// any number of independent interests per file descriptor, see
// [Loop.RegisterInterest] and [Loop.DeregisterInterest]. Each interest is
// identified by an [InterestID], so deregistering one can never remove or
// fire another, even if the descriptor number has since been recycled.
// When a descriptor becomes ready, every interest it satisfies is invoked, in
// registration order.
//
// # Thread Safety
//
//   - [Loop.Submit], [Loop.SubmitInternal], [Loop.Wake] are safe from any goroutine
//   - Interest registration and timer scheduling are safe from any goroutine
//   - Task, timer and I/O callbacks always run on the loop goroutine
//   - [Promise.OnSettled] observers run on whichever goroutine settles the
//     promise, use [Loop.Submit] to hop back onto the loop
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loop.ScheduleTimer(100*time.Millisecond, func() {
//	    fmt.Println("Hello after 100ms")
//	    go loop.Shutdown(context.Background())
//	})
//
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package eventloop
