// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package ospoll

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-ospoll/eventloop"
)

// fakeReactor records registrations, timers and submitted tasks, which the
// test drives manually, from the test goroutine.
type fakeReactor struct {
	interests   map[eventloop.InterestID]fakeInterest
	timers      map[eventloop.TimerID]fakeTimer
	submitted   []func()
	registerErr error
	nextID      uint64
	mu          sync.Mutex
	onLoop      atomic.Bool
	terminated  atomic.Bool
	deregisters atomic.Int32
	cancels     atomic.Int32
}

type fakeInterest struct {
	cb     eventloop.IOCallback
	fd     int
	events eventloop.IOEvents
}

type fakeTimer struct {
	when time.Time
	fn   func()
}

var _ Reactor = (*fakeReactor)(nil)

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		interests: make(map[eventloop.InterestID]fakeInterest),
		timers:    make(map[eventloop.TimerID]fakeTimer),
	}
}

func (r *fakeReactor) RegisterInterest(fd int, events eventloop.IOEvents, cb eventloop.IOCallback) (eventloop.InterestID, error) {
	if r.terminated.Load() {
		return 0, eventloop.ErrLoopTerminated
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return 0, r.registerErr
	}
	r.nextID++
	id := eventloop.InterestID(r.nextID)
	r.interests[id] = fakeInterest{cb: cb, fd: fd, events: events}
	return id, nil
}

func (r *fakeReactor) DeregisterInterest(fd int, id eventloop.InterestID) error {
	r.deregisters.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.interests[id]; !ok || in.fd != fd {
		return eventloop.ErrInterestNotFound
	}
	delete(r.interests, id)
	return nil
}

func (r *fakeReactor) ScheduleTimerAt(when time.Time, fn func()) (eventloop.TimerID, error) {
	if r.terminated.Load() {
		return 0, eventloop.ErrLoopTerminated
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := eventloop.TimerID(r.nextID)
	r.timers[id] = fakeTimer{when: when, fn: fn}
	return id, nil
}

func (r *fakeReactor) CancelTimer(id eventloop.TimerID) error {
	r.cancels.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[id]; !ok {
		return eventloop.ErrTimerNotFound
	}
	delete(r.timers, id)
	return nil
}

func (r *fakeReactor) Submit(fn func()) error {
	if r.terminated.Load() {
		return eventloop.ErrLoopTerminated
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, fn)
	return nil
}

func (r *fakeReactor) NewPromise() (eventloop.Promise, eventloop.ResolveFunc, eventloop.RejectFunc) {
	p := &fakePromise{}
	if r.terminated.Load() {
		p.settle(eventloop.Rejected, eventloop.ErrLoopTerminated)
	}
	return p, func(v eventloop.Result) { p.settle(eventloop.Resolved, v) }, func(err error) { p.settle(eventloop.Rejected, err) }
}

func (r *fakeReactor) IsLoopGoroutine() bool {
	return r.onLoop.Load()
}

func (r *fakeReactor) interestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.interests)
}

func (r *fakeReactor) timerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// fire invokes the callbacks registered for fd, in registration order, as
// the loop would on a notification.
func (r *fakeReactor) fire(fd int, events eventloop.IOEvents) {
	r.mu.Lock()
	var ids []eventloop.InterestID
	for id, in := range r.interests {
		if in.fd == fd {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	slices.Sort(ids)
	for _, id := range ids {
		r.mu.Lock()
		in, ok := r.interests[id]
		r.mu.Unlock()
		if ok {
			in.cb(events)
		}
	}
}

// fireTimers runs every armed timer, regardless of deadline.
func (r *fakeReactor) fireTimers() {
	r.mu.Lock()
	timers := make([]fakeTimer, 0, len(r.timers))
	for id, tm := range r.timers {
		timers = append(timers, tm)
		delete(r.timers, id)
	}
	r.mu.Unlock()
	for _, tm := range timers {
		tm.fn()
	}
}

// runSubmitted runs submitted tasks, returning how many ran.
func (r *fakeReactor) runSubmitted() int {
	r.mu.Lock()
	tasks := r.submitted
	r.submitted = nil
	r.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

type fakePromise struct {
	result    eventloop.Result
	observers []func(eventloop.PromiseState, eventloop.Result)
	state     eventloop.PromiseState
	mu        sync.Mutex
}

func (p *fakePromise) State() eventloop.PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePromise) Result() eventloop.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *fakePromise) ToChannel() <-chan eventloop.Result {
	ch := make(chan eventloop.Result, 1)
	p.OnSettled(func(_ eventloop.PromiseState, result eventloop.Result) {
		ch <- result
		close(ch)
	})
	return ch
}

func (p *fakePromise) OnSettled(fn func(eventloop.PromiseState, eventloop.Result)) {
	p.mu.Lock()
	if p.state == eventloop.Pending {
		p.observers = append(p.observers, fn)
		p.mu.Unlock()
		return
	}
	state, result := p.state, p.result
	p.mu.Unlock()
	fn(state, result)
}

func (p *fakePromise) settle(state eventloop.PromiseState, result eventloop.Result) {
	p.mu.Lock()
	if p.state != eventloop.Pending {
		p.mu.Unlock()
		return
	}
	p.state, p.result = state, result
	observers := p.observers
	p.observers = nil
	p.mu.Unlock()
	for _, fn := range observers {
		fn(state, result)
	}
}
