// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joeycumines/go-ospoll/eventloop"
)

// Pending is a poll issued by [Poller.PollAsync], settled exactly once.
//
// Every settlement removes the reactor registration and cancels the
// deadline timer, before [Pending.Done] is closed.
type Pending struct {
	start    time.Time
	poller   *Poller
	d        *Descriptor
	promise  eventloop.Promise
	resolve  eventloop.ResolveFunc
	stopCtx  func() bool
	done     chan struct{}
	deadline deadline
	outcome  Outcome

	fd         int
	interestID eventloop.InterestID
	timerID    eventloop.TimerID
	mu         sync.Mutex
	interest   Interest
	registered bool
	timerArmed bool
	suspended  bool
	settled    bool
}

// State returns the current state.
func (p *Pending) State() State {
	return p.Outcome().State
}

// Outcome returns the outcome, with [StatePending] until settled.
func (p *Pending) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Err is shorthand for p.Outcome().Err().
func (p *Pending) Err() error {
	return p.Outcome().Err()
}

// Done returns a channel closed once the poll has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Promise returns the reactor promise backing the poll, resolved with its
// [Outcome]. If the reactor terminates first, it is rejected instead, with
// [eventloop.ErrLoopTerminated], and the poll fails with the same error.
func (p *Pending) Promise() eventloop.Promise {
	return p.promise
}

// Then registers fn to run on the reactor goroutine once the poll has
// settled. The error is nil for ready and timed out outcomes, and the cause
// otherwise. If the reactor no longer accepts work, fn runs on the goroutine
// that settled the poll.
func (p *Pending) Then(fn func(Outcome, error)) {
	if fn == nil {
		return
	}
	p.promise.OnSettled(func(eventloop.PromiseState, eventloop.Result) {
		o := p.Outcome()
		p.poller.dispatch(func() { fn(o, o.waitErr()) })
	})
}

// Wait blocks until the poll settles, returning the outcome, and the cause
// if it failed or was cancelled. A timed out poll is not an error. If ctx is
// done first, the poll is cancelled, and the context's error is returned.
//
// Wait must not be called on the reactor goroutine, which would never be
// able to settle the poll. It returns [ErrWaitOnLoop] instead, unless the
// poll has already settled.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		o := p.Outcome()
		return o, o.waitErr()
	default:
	}

	if p.poller.reactor.IsLoopGoroutine() {
		return p.Outcome(), ErrWaitOnLoop
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		p.settle(Outcome{State: StateCancelled, Cause: context.Cause(ctx)})
		<-p.done
	}

	o := p.Outcome()
	if o.State == StateCancelled && ctx.Err() != nil {
		return o, ctx.Err()
	}
	return o, o.waitErr()
}

// Cancel abandons the poll, settling it [StateCancelled] with
// [ErrCancelled]. It reports false if the poll had already settled.
func (p *Pending) Cancel() bool {
	return p.settle(Outcome{State: StateCancelled, Cause: ErrCancelled})
}

func (p *Pending) isSettled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

func (p *Pending) fail(err error) bool {
	return p.settle(Outcome{State: StateFailed, Cause: err})
}

// settle transitions to a terminal outcome, the first call wins.
func (p *Pending) settle(o Outcome) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.outcome = o
	fd, id, registered := p.fd, p.interestID, p.registered
	timerID, timerArmed := p.timerID, p.timerArmed
	stopCtx, suspended := p.stopCtx, p.suspended
	p.registered, p.timerArmed, p.stopCtx = false, false, nil
	p.mu.Unlock()

	x := p.poller
	if registered {
		if err := x.reactor.DeregisterInterest(fd, id); err != nil {
			x.logger.Debug().
				Err(err).
				Int(`fd`, fd).
				Log(`deregister interest failed`)
		}
	}
	if timerArmed {
		// already fired, if settled by the deadline
		_ = x.reactor.CancelTimer(timerID)
	}
	if stopCtx != nil {
		stopCtx()
	}
	if p.d != nil {
		p.d.detach(p)
	}

	close(p.done)

	waited := nowFunc().Sub(p.start)
	x.metrics.recordSettle(o.State, suspended, waited)
	x.logSettle(p, o, waited)
	if suspended && o.State == StateFailed && errors.Is(o.Cause, ErrClosedDescriptor) {
		x.logClosedPending(p)
	}

	p.resolve(o)
	return true
}

// onPromiseSettled fails the poll if the reactor rejected its promise, on
// termination.
func (p *Pending) onPromiseSettled(state eventloop.PromiseState, result eventloop.Result) {
	if state != eventloop.Rejected {
		return
	}
	err, _ := result.(error)
	if err == nil {
		err = eventloop.ErrLoopTerminated
	}
	p.fail(err)
}

// onEvents is the reactor callback. Notifications are re-verified, since
// another reader may have consumed the data, or the fd slot been recycled.
func (p *Pending) onEvents(eventloop.IOEvents) {
	if p.isSettled() {
		return
	}
	ready, retries, err := p.d.checkReady(p.interest)
	p.poller.recordRetries(retries)
	switch {
	case err != nil:
		p.fail(err)
	case ready != 0:
		p.settle(Outcome{State: StateReady, Ready: ready})
	default:
		p.poller.recordStale(p)
	}
}

// onDeadline is the deadline timer callback. Readiness is checked a final
// time, so a descriptor that became ready as the deadline passed reports
// ready.
func (p *Pending) onDeadline() {
	p.mu.Lock()
	p.timerArmed = false
	settled := p.settled
	p.mu.Unlock()
	if settled {
		return
	}
	ready, retries, err := p.d.checkReady(p.interest)
	p.poller.recordRetries(retries)
	switch {
	case err != nil:
		p.fail(err)
	case ready != 0:
		p.settle(Outcome{State: StateReady, Ready: ready})
	default:
		p.settle(Outcome{State: StateTimedOut})
	}
}
