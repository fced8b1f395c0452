// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
)

// Result represents the value of a resolved or rejected promise.
// For rejected promises, this is typically an error.
type Result = any

// PromiseState represents the lifecycle state of a [Promise].
// State transitions are irreversible.
type PromiseState int

const (
	// Pending indicates the promise has not yet been settled.
	Pending PromiseState = iota

	// Resolved indicates the promise completed successfully with a value.
	Resolved

	// Rejected indicates the promise failed with a reason.
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Resolved:
		return "Resolved"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Promise is a read-only view of a future result, settled exactly once.
type Promise interface {
	// State returns the current [PromiseState].
	State() PromiseState

	// Result returns the settled value or reason, or nil if pending.
	Result() Result

	// ToChannel returns a channel that receives the result once settled.
	// The channel is buffered (capacity 1) and is closed after the send.
	ToChannel() <-chan Result

	// OnSettled registers fn to be called exactly once, with the final state
	// and result. If the promise is already settled, fn is called
	// immediately, on the calling goroutine. Otherwise, it is called on the
	// goroutine that settles the promise, which may be any goroutine,
	// including the loop itself during shutdown.
	OnSettled(fn func(state PromiseState, result Result))
}

// ResolveFunc settles the associated promise as [Resolved]. Calls after the
// first settlement are ignored.
type ResolveFunc func(Result)

// RejectFunc settles the associated promise as [Rejected]. Calls after the
// first settlement are ignored.
type RejectFunc func(error)

// promise is the concrete implementation.
type promise struct {
	result      Result
	subscribers []chan Result
	observers   []func(PromiseState, Result)
	state       PromiseState
	mu          sync.Mutex
}

var _ Promise = (*promise)(nil)

func (p *promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *promise) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *promise) ToChannel() <-chan Result {
	ch := make(chan Result, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Pending {
		ch <- p.result
		close(ch)
		return ch
	}

	p.subscribers = append(p.subscribers, ch)
	return ch
}

func (p *promise) OnSettled(fn func(PromiseState, Result)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.state == Pending {
		p.observers = append(p.observers, fn)
		p.mu.Unlock()
		return
	}
	state, result := p.state, p.result
	p.mu.Unlock()
	fn(state, result)
}

// Resolve settles the promise as Resolved, notifying all subscribers.
func (p *promise) Resolve(val Result) {
	p.settle(Resolved, val)
}

// Reject settles the promise as Rejected, notifying all subscribers.
func (p *promise) Reject(err error) {
	p.settle(Rejected, err)
}

func (p *promise) settle(state PromiseState, result Result) {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.result = result
	subscribers, observers := p.subscribers, p.observers
	p.subscribers, p.observers = nil, nil
	p.mu.Unlock()

	// capacity 1, and each channel receives exactly one value
	for _, ch := range subscribers {
		ch <- result
		close(ch)
	}

	// observers run outside the lock, they may inspect the promise
	for _, fn := range observers {
		fn(state, result)
	}
}
