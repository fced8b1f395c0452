// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-ospoll/eventloop"
	"github.com/joeycumines/logiface"
)

// Reactor is the scheduler a [Poller] suspends polls on. It is implemented
// by [eventloop.Loop]. Interest and timer callbacks must be invoked on a
// single goroutine, the one for which IsLoopGoroutine reports true.
type Reactor interface {
	RegisterInterest(fd int, events eventloop.IOEvents, cb eventloop.IOCallback) (eventloop.InterestID, error)
	DeregisterInterest(fd int, id eventloop.InterestID) error
	ScheduleTimerAt(when time.Time, fn func()) (eventloop.TimerID, error)
	CancelTimer(id eventloop.TimerID) error
	Submit(fn func()) error
	NewPromise() (eventloop.Promise, eventloop.ResolveFunc, eventloop.RejectFunc)
	IsLoopGoroutine() bool
}

var _ Reactor = (*eventloop.Loop)(nil)

// Poller awaits descriptor readiness without blocking the reactor's
// goroutine. A Poller is safe for concurrent use, and holds no resources
// beyond those of its pending polls.
type Poller struct {
	reactor Reactor
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	metrics *pollerMetrics
}

// NewPoller creates a poller suspending on reactor, typically an
// [*eventloop.Loop].
func NewPoller(reactor Reactor, opts ...PollerOption) (*Poller, error) {
	if reactor == nil {
		return nil, errors.New("ospoll: nil reactor")
	}
	cfg, err := resolvePollerOptions(opts)
	if err != nil {
		return nil, err
	}
	x := &Poller{
		reactor: reactor,
		logger:  pollerLogger(cfg.logger),
		limiter: cfg.limiter,
	}
	if cfg.metrics {
		x.metrics = new(pollerMetrics)
	}
	return x, nil
}

// PollAsync waits until d is ready for any of interest, or timeout elapses.
// A zero timeout checks readiness without waiting, and a negative one (see
// [NoTimeout]) never expires. The deadline is fixed when PollAsync is
// called.
//
// PollAsync never blocks. If d is already ready, the returned poll is
// already settled, and nothing is registered with the reactor. Otherwise it
// settles on the reactor's goroutine, once d is ready or the deadline has
// passed, unless ctx is done, or d is closed, first.
//
// Failures are reported through the outcome, e.g. [ErrClosedDescriptor],
// [ErrInvalidInterest], or [eventloop.ErrLoopTerminated].
func (x *Poller) PollAsync(ctx context.Context, d *Descriptor, interest Interest, timeout time.Duration) *Pending {
	if ctx == nil {
		ctx = context.Background()
	}

	now := nowFunc()
	p := &Pending{
		poller:   x,
		d:        d,
		deadline: newDeadline(now, timeout),
		start:    now,
		interest: interest,
		done:     make(chan struct{}),
	}
	if x.metrics != nil {
		x.metrics.polls.Add(1)
	}

	p.promise, p.resolve, _ = x.reactor.NewPromise()
	p.promise.OnSettled(p.onPromiseSettled)

	switch {
	case p.isSettled():
		// reactor already terminated
	case d == nil:
		p.fail(ErrInvalidDescriptor)
	case !interest.valid():
		p.fail(ErrInvalidInterest)
	case ctx.Err() != nil:
		p.settle(Outcome{State: StateCancelled, Cause: context.Cause(ctx)})
	default:
		x.begin(ctx, p)
	}

	return p
}

// PollAsyncMillis is [Poller.PollAsync] with a timeout in milliseconds,
// where a negative value never expires.
func (x *Poller) PollAsyncMillis(ctx context.Context, d *Descriptor, interest Interest, timeoutMs int) *Pending {
	return x.PollAsync(ctx, d, interest, millisToTimeout(timeoutMs))
}

// Metrics returns a snapshot of poll statistics, or the zero value unless
// enabled using [WithMetrics].
func (x *Poller) Metrics() PollerMetrics {
	return x.metrics.snapshot()
}

// begin performs the immediate readiness check, then, if necessary,
// suspends p on the reactor.
func (x *Poller) begin(ctx context.Context, p *Pending) {
	d := p.d

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		p.fail(ErrClosedDescriptor)
		return
	}

	ready, retries, err := pollFD(d.fd, p.interest, 0)
	x.recordRetries(retries)
	if err != nil || ready != 0 || p.deadline.expired(nowFunc()) {
		d.mu.Unlock()
		switch {
		case err != nil:
			p.fail(err)
		case ready != 0:
			p.settle(Outcome{State: StateReady, Ready: ready})
		default:
			p.settle(Outcome{State: StateTimedOut})
		}
		return
	}

	// p.mu is held until fully armed, so callbacks observe the registration
	p.mu.Lock()
	p.fd = d.fd
	id, err := x.reactor.RegisterInterest(d.fd, p.interest.events(), p.onEvents)
	if err != nil {
		p.mu.Unlock()
		d.mu.Unlock()
		p.fail(fmt.Errorf("ospoll: register interest: %w", err))
		return
	}
	p.interestID = id
	p.registered = true
	p.suspended = true
	d.attachLocked(p)
	d.mu.Unlock()

	if !p.deadline.infinite {
		id, err := x.reactor.ScheduleTimerAt(p.deadline.at, p.onDeadline)
		if err != nil {
			p.mu.Unlock()
			p.fail(fmt.Errorf("ospoll: schedule deadline: %w", err))
			return
		}
		p.timerID = id
		p.timerArmed = true
	}

	if ctx.Done() != nil {
		p.stopCtx = context.AfterFunc(ctx, func() {
			p.settle(Outcome{State: StateCancelled, Cause: context.Cause(ctx)})
		})
	}
	p.mu.Unlock()

	x.logger.Debug().
		Str(`fd`, d.name).
		Int(`raw`, p.fd).
		Str(`interest`, p.interest.String()).
		Bool(`infinite`, p.deadline.infinite).
		Log(`poll suspended`)
}

// dispatch runs fn on the reactor, or inline if it no longer accepts work.
func (x *Poller) dispatch(fn func()) {
	if err := x.reactor.Submit(fn); err != nil {
		fn()
	}
}

func (x *Poller) recordRetries(n int) {
	if n <= 0 {
		return
	}
	if x.metrics != nil {
		x.metrics.retries.Add(uint64(n))
	}
	if x.allowLog(`retry`) {
		x.logger.Debug().
			Int(`retries`, n).
			Log(`interrupted readiness check retried`)
	}
}

func (x *Poller) recordStale(p *Pending) {
	if x.metrics != nil {
		x.metrics.staleWakeups.Add(1)
	}
	if x.allowLog(`stale`) {
		x.logger.Debug().
			Int(`fd`, p.fd).
			Str(`interest`, p.interest.String()).
			Log(`stale readiness notification`)
	}
}
