// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// scavengeBatch is the number of registry entries checked per tick.
const scavengeBatch = 20

// Loop is a single-goroutine cooperative scheduler and I/O reactor.
//
// Tasks, timer callbacks and I/O callbacks all execute on the loop
// goroutine, one at a time. Submission, timer scheduling and interest
// registration are safe from any goroutine.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	registry *registry
	logger   *logiface.Logger[logiface.Event]
	metrics  *loopMetrics

	// pollIO is the multiplexer wait, replaced in tests
	pollIO func(timeoutMs int) (int, error)

	loopDone chan struct{}

	external taskQueue
	internal taskQueue
	timers   timerSet
	poller   FastPoller

	tickAnchor      time.Time
	tickElapsedTime atomic.Int64

	state    loopState
	stopOnce sync.Once
	doneOnce sync.Once

	wakeReadFd  int
	wakeWriteFd int
	wakePending atomic.Uint32

	loopGoroutineID atomic.Uint64
	inflight        atomic.Int64

	maxPollDelay time.Duration
	id           uint64
	tickCount    uint64

	batchBuf [256]func()
}

var loopIDCounter atomic.Uint64

// New creates a loop, ready to [Loop.Run]. On platforms without a reactor
// implementation, it fails with [ErrUnsupported].
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeReadFd, wakeWriteFd, err := newWakeFds()
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:           loopIDCounter.Add(1),
		registry:     newRegistry(),
		loopDone:     make(chan struct{}),
		wakeReadFd:   wakeReadFd,
		wakeWriteFd:  wakeWriteFd,
		maxPollDelay: cfg.maxPollDelay,
	}
	l.logger = loopLogger(cfg.logger, l.id)
	if cfg.metrics {
		l.metrics = newLoopMetrics()
	}
	l.pollIO = l.poller.PollIO

	if err := l.poller.Init(); err != nil {
		closeWakeFds(wakeReadFd, wakeWriteFd)
		return nil, err
	}

	if _, err := l.poller.RegisterInterest(wakeReadFd, EventRead, func(IOEvents) {
		drainWake(l.wakeReadFd)
		l.wakePending.Store(0)
	}); err != nil {
		_ = l.poller.Close()
		closeWakeFds(wakeReadFd, wakeWriteFd)
		return nil, err
	}

	return l, nil
}

// Run runs the event loop and blocks until fully stopped, via
// [Loop.Shutdown], [Loop.Close], or ctx cancellation (which returns
// ctx.Err()). To run in a separate goroutine, use: `go loop.Run(ctx)`.
func (l *Loop) Run(ctx context.Context) error {
	if l.IsLoopGoroutine() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	defer l.markDone()

	l.tickAnchor = time.Now()
	l.tickElapsedTime.Store(0)

	l.logger.Debug().Log(`loop started`)

	return l.run(ctx)
}

// Done returns a channel closed once the loop has fully terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.loopDone
}

func (l *Loop) markDone() {
	l.doneOnce.Do(func() { close(l.loopDone) })
}

// Shutdown gracefully stops the loop, running all queued work, and rejecting
// every promise still pending with [ErrLoopTerminated]. It blocks until
// termination completes or ctx is done, except when called from the loop
// goroutine. Calls after the first return [ErrLoopTerminated].
func (l *Loop) Shutdown(ctx context.Context) error {
	result := ErrLoopTerminated
	l.stopOnce.Do(func() {
		result = l.shutdownImpl(ctx)
	})
	return result
}

func (l *Loop) shutdownImpl(ctx context.Context) error {
	l.requestStop()
	if l.IsLoopGoroutine() {
		// can't wait on ourselves
		return nil
	}
	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop without waiting for it to terminate. Queued work is
// still drained by the loop goroutine before it exits.
func (l *Loop) Close() error {
	if !l.requestStop() {
		return ErrLoopTerminated
	}
	return nil
}

// requestStop transitions to StateTerminating, or straight to
// StateTerminated if Run was never called. Returns false if already stopping.
func (l *Loop) requestStop() bool {
	for {
		current := l.state.Load()
		if current == StateTerminated || current == StateTerminating {
			return false
		}
		if !l.state.TryTransition(current, StateTerminating) {
			continue
		}
		switch current {
		case StateAwake:
			l.state.Store(StateTerminated)
			l.finalize()
			l.markDone()
		case StateSleeping:
			_ = l.submitWakeup()
		}
		return true
	}
}

// run is the main loop goroutine.
func (l *Loop) run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	// wakes the loop on cancellation
	stop := context.AfterFunc(ctx, func() {
		l.requestStop()
	})
	defer stop()

	for {
		if l.state.stopping() {
			l.shutdown()
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
		l.tick()
	}
}

// shutdown drains all queues, then rejects outstanding promises and releases
// the reactor.
func (l *Loop) shutdown() {
	l.state.Store(StateTerminated)

	// tasks may still be mid-push, from submitters that checked the state
	// just before the store above
	emptyChecks := 0
	for emptyChecks < 3 {
		for spin := 0; l.inflight.Load() > 0; spin++ {
			if spin > 1000 {
				time.Sleep(100 * time.Microsecond)
			} else {
				runtime.Gosched()
			}
		}
		if l.runQueue(&l.internal)+l.runQueue(&l.external) > 0 {
			emptyChecks = 0
		} else {
			emptyChecks++
			runtime.Gosched()
		}
	}

	l.finalize()

	l.logger.Debug().
		Uint64(`ticks`, l.tickCount).
		Log(`loop terminated`)
}

// finalize rejects outstanding promises, drops timers, and closes the
// reactor. Promise observers run before the reactor is closed, so they may
// still deregister.
func (l *Loop) finalize() {
	l.registry.RejectAll(ErrLoopTerminated)
	if n := l.timers.clear(); n > 0 {
		l.logger.Debug().
			Int(`timers`, n).
			Log(`dropped pending timers`)
	}
	_ = l.poller.Close()
	closeWakeFds(l.wakeReadFd, l.wakeWriteFd)
}

// tick is a single iteration of the event loop.
func (l *Loop) tick() {
	l.tickCount++
	l.tickElapsedTime.Store(int64(time.Since(l.tickAnchor)))

	if l.metrics != nil {
		l.metrics.ticks.Add(1)
		l.metrics.queue.update(l.external.Length(), l.internal.Length())
	}

	l.runTimers()
	l.runQueue(&l.internal)
	l.runQueue(&l.external)
	l.poll()
	l.registry.Scavenge(scavengeBatch)
}

// runQueue runs a single batch of tasks from q, returning the number run.
// Tasks queued by the batch itself wait for the next call, so neither queue
// can starve timers or I/O.
func (l *Loop) runQueue(q *taskQueue) int {
	n := q.PopBatch(l.batchBuf[:])
	for i := 0; i < n; i++ {
		l.safeExecute(l.batchBuf[i])
		l.batchBuf[i] = nil
	}
	return n
}

// poll blocks in the multiplexer, unless there is already work to do.
func (l *Loop) poll() {
	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return
	}

	for {
		// re-checked after the transition, submitters only wake a sleeping loop
		if l.external.Length() > 0 || l.internal.Length() > 0 {
			break
		}

		_, err := l.pollIO(l.calculateTimeout())
		if err == nil {
			break
		}
		if isInterrupted(err) {
			if l.state.Load() != StateSleeping {
				break
			}
			// timeout recomputed from the timer heap
			continue
		}

		l.logPollError(err)
		l.state.TryTransition(StateSleeping, StateTerminating)
		return
	}

	l.state.TryTransition(StateSleeping, StateRunning)
}

// calculateTimeout determines how long to block in the multiplexer, in
// milliseconds, rounding up so a timer is never polled for early.
func (l *Loop) calculateTimeout() int {
	delay := l.maxPollDelay
	if next, ok := l.timers.next(); ok {
		delay = min(delay, max(time.Until(next), 0))
	}
	return durationToMillis(delay)
}

// durationToMillis converts d to milliseconds, rounding up.
func durationToMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// runTimers executes all timers due as of the current tick.
func (l *Loop) runTimers() {
	now := l.CurrentTickTime()
	for {
		fn, ok := l.timers.popExpired(now)
		if !ok {
			return
		}
		l.safeExecute(fn)
	}
}

// submitWakeup interrupts the multiplexer. It is allowed while
// terminating, so that the loop can observe the stop request.
func (l *Loop) submitWakeup() error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	return signalWake(l.wakeWriteFd)
}

func (l *Loop) wakeIfSleeping() {
	if l.state.Load() == StateSleeping && l.wakePending.CompareAndSwap(0, 1) {
		if err := l.submitWakeup(); err != nil {
			// the wake fd may be closing, the task is already queued
			l.wakePending.Store(0)
		}
	}
}

// Submit queues fn to run on the loop goroutine, in FIFO order relative to
// other Submit calls. It fails with [ErrLoopTerminated] once the loop has
// terminated. Submission is permitted while terminating, since queued work
// is drained.
func (l *Loop) Submit(fn func()) error {
	return l.submit(&l.external, fn)
}

// SubmitInternal queues fn to the priority queue, which runs before
// external tasks on each tick.
func (l *Loop) SubmitInternal(fn func()) error {
	return l.submit(&l.internal, fn)
}

func (l *Loop) submit(q *taskQueue, fn func()) error {
	l.inflight.Add(1)
	defer l.inflight.Add(-1)

	if !l.state.acceptsWork() {
		return ErrLoopTerminated
	}

	q.Push(fn)
	l.wakeIfSleeping()
	return nil
}

// Wake interrupts the multiplexer wait, if the loop is sleeping.
func (l *Loop) Wake() error {
	l.wakeIfSleeping()
	return nil
}

// ScheduleTimer runs fn on the loop goroutine once delay has elapsed,
// measured from the time of the call.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) (TimerID, error) {
	return l.ScheduleTimerAt(time.Now().Add(delay), fn)
}

// ScheduleTimerAt runs fn on the loop goroutine once the monotonic clock
// reaches when. Timers with equal deadlines fire in scheduling order.
func (l *Loop) ScheduleTimerAt(when time.Time, fn func()) (TimerID, error) {
	if !l.state.acceptsWork() {
		return 0, ErrLoopTerminated
	}
	id, earliest := l.timers.add(when, fn)
	if earliest && !l.IsLoopGoroutine() {
		l.wakeIfSleeping()
	}
	return id, nil
}

// CancelTimer prevents a timer from firing. It returns [ErrTimerNotFound]
// if the timer already fired (or is firing), was cancelled, or never
// existed.
func (l *Loop) CancelTimer(id TimerID) error {
	if !l.timers.cancel(id) {
		return ErrTimerNotFound
	}
	return nil
}

// RegisterInterest adds an independent registration for fd. The callback
// runs on the loop goroutine, with the reported events, whenever they
// satisfy the registration. See also [Loop.DeregisterInterest].
func (l *Loop) RegisterInterest(fd int, events IOEvents, cb IOCallback) (InterestID, error) {
	if cb == nil {
		return 0, ErrInvalidEvents
	}
	if !l.state.acceptsWork() {
		return 0, ErrLoopTerminated
	}
	return l.poller.RegisterInterest(fd, events, l.guard(cb))
}

// DeregisterInterest removes a registration. Once it returns, the callback
// will not be invoked again.
func (l *Loop) DeregisterInterest(fd int, id InterestID) error {
	return l.poller.DeregisterInterest(fd, id)
}

// RegisterFD registers the sole callback for fd.
func (l *Loop) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if cb == nil {
		return ErrInvalidEvents
	}
	if !l.state.acceptsWork() {
		return ErrLoopTerminated
	}
	return l.poller.RegisterFD(fd, events, l.guard(cb))
}

// UnregisterFD removes a registration made by [Loop.RegisterFD].
func (l *Loop) UnregisterFD(fd int) error {
	return l.poller.UnregisterFD(fd)
}

// ModifyFD updates the events monitored for a [Loop.RegisterFD] registration.
func (l *Loop) ModifyFD(fd int, events IOEvents) error {
	return l.poller.ModifyFD(fd, events)
}

// guard wraps an I/O callback with panic recovery.
func (l *Loop) guard(cb IOCallback) IOCallback {
	return func(events IOEvents) {
		defer func() {
			if r := recover(); r != nil {
				l.logPanic(`io`, r)
			}
		}()
		cb(events)
	}
}

// NewPromise creates a promise tracked by the loop. Promises still pending
// when the loop terminates are rejected with [ErrLoopTerminated]; a promise
// created after termination is rejected immediately.
func (l *Loop) NewPromise() (Promise, ResolveFunc, RejectFunc) {
	_, p := l.registry.NewPromise()
	if l.state.Load() == StateTerminated {
		p.Reject(ErrLoopTerminated)
	}
	return p, p.Resolve, p.Reject
}

// CurrentTickTime returns the time cached at the start of the current tick,
// carrying a monotonic reading.
func (l *Loop) CurrentTickTime() time.Time {
	if l.tickAnchor.IsZero() {
		return time.Now()
	}
	return l.tickAnchor.Add(time.Duration(l.tickElapsedTime.Load()))
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// Metrics returns a snapshot of the loop statistics, or the zero value if
// the loop was not created [WithMetrics].
func (l *Loop) Metrics() Metrics {
	if l.metrics == nil {
		return Metrics{}
	}
	return Metrics{
		Latency: l.metrics.latency.Sample(),
		Queue:   l.metrics.queue.snapshot(),
		TPS:     l.metrics.tps.TPS(),
		Ticks:   l.metrics.ticks.Load(),
	}
}

// safeExecute runs a task with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	if fn == nil {
		return
	}

	if l.metrics != nil {
		start := time.Now()
		defer func() {
			l.metrics.latency.Record(time.Since(start))
			l.metrics.tps.Increment()
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			l.logPanic(`task`, r)
		}
	}()

	fn()
}

// IsLoopGoroutine reports whether the caller is running on the loop
// goroutine, i.e. inside a task, timer, or I/O callback.
func (l *Loop) IsLoopGoroutine() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID returns the current goroutine's ID, parsed from the
// runtime.Stack header.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
