// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package ospoll

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-ospoll/eventloop"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_roundTrip(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	n, err := Write(pipe.WriteEnd, []byte("ok"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	o := waitSettled(t, pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, time.Second))
	assert.Equal(t, Outcome{State: StateReady, Ready: Readable}, o)

	b, err := Read(pipe.ReadEnd, 10)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
}

func TestScenario_timeout(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	start := time.Now()
	o := waitSettled(t, pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, 100*time.Millisecond))
	elapsed := time.Since(start)

	assert.Equal(t, StateTimedOut, o.State)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestScenario_eof(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	require.NoError(t, Close(pipe.WriteEnd))

	start := time.Now()
	o := waitSettled(t, pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, time.Second))
	assert.Equal(t, Outcome{State: StateReady, Ready: Readable}, o)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	b, err := Read(pipe.ReadEnd, 10)
	assert.ErrorIs(t, err, ErrEOF)
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, b)
}

func TestScenario_writeWouldBlock(t *testing.T) {
	pipe := newTestPipe(t)
	fillPipe(t, pipe.WriteEnd)

	n, err := Write(pipe.WriteEnd, []byte("x"))
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Zero(t, n)
}

func TestPollAsync_roundTripPayloads(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	capacity, err := PipeCapacity(pipe.ReadEnd)
	require.NoError(t, err)

	for _, size := range []int{1, 7, 512, 4096, min(capacity/2, 16384)} {
		payload := bytes.Repeat([]byte{byte(size)}, size)
		n, err := Write(pipe.WriteEnd, payload)
		require.NoError(t, err)
		require.Equal(t, size, n)

		o := waitSettled(t, pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, time.Second))
		require.Equal(t, StateReady, o.State)

		b, err := Read(pipe.ReadEnd, size)
		require.NoError(t, err)
		assert.Equal(t, payload, b)
	}
}

func TestPollAsync_immediateTimeoutDoesNotWait(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	start := time.Now()
	p := x.PollAsync(context.Background(), pipe.ReadEnd, Readable, 0)
	assert.Equal(t, StateTimedOut, p.State())
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPollAsync_preExistingReadiness(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	_, err := Write(pipe.WriteEnd, []byte("data"))
	require.NoError(t, err)

	for _, timeout := range []time.Duration{0, time.Millisecond, time.Hour, NoTimeout} {
		p := x.PollAsync(context.Background(), pipe.ReadEnd, Readable, timeout)
		assert.Equal(t, Outcome{State: StateReady, Ready: Readable}, p.Outcome(), "timeout %v", timeout)
	}
}

func TestPollAsync_wakesOnEventNotDeadline(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	start := time.Now()
	p := pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, 5*time.Second)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = Write(pipe.WriteEnd, []byte("x"))
	}()

	o, err := p.Wait(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, StateReady, o.State)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestPollAsync_eofWakesPendingPoll(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	p := pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, 5*time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StatePending, p.State())
	require.NoError(t, pipe.WriteEnd.Close())

	o := waitSettled(t, p)
	assert.Equal(t, Outcome{State: StateReady, Ready: Readable}, o)
	_, err := Read(pipe.ReadEnd, 10)
	assert.ErrorIs(t, err, ErrEOF)
}

func TestPollAsync_writableAfterDrain(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	total := fillPipe(t, pipe.WriteEnd)

	o := waitSettled(t, pollOnLoop(t, loop, x, pipe.WriteEnd, Writable, 50*time.Millisecond))
	assert.Equal(t, StateTimedOut, o.State)

	p := pollOnLoop(t, loop, x, pipe.WriteEnd, Writable, 5*time.Second)
	for drained := 0; drained < total; {
		b, err := Read(pipe.ReadEnd, 65536)
		require.NoError(t, err)
		drained += len(b)
	}
	o = waitSettled(t, p)
	assert.Equal(t, Outcome{State: StateReady, Ready: Writable}, o)
}

func TestPollAsync_cancellationHygiene(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)

	for range 10 {
		old := newTestPipe(t)
		var stale atomic.Int32
		p := pollOnLoop(t, loop, x, old.ReadEnd, Readable, NoTimeout)
		p.Then(func(o Outcome, _ error) {
			if o.State != StateCancelled {
				stale.Add(1)
			}
		})
		require.True(t, p.Cancel())
		oldFd, err := old.ReadEnd.Raw()
		require.NoError(t, err)
		require.NoError(t, old.Close())

		// likely reuses the old fd numbers
		pipe := newTestPipe(t)
		fd, err := pipe.ReadEnd.Raw()
		require.NoError(t, err)
		_, err = Write(pipe.WriteEnd, []byte("x"))
		require.NoError(t, err)

		q := pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, 5*time.Second)
		assert.Equal(t, StateReady, waitSettled(t, q).State)

		// a loop round trip, to flush any dispatch for the old registration
		done := make(chan struct{})
		require.NoError(t, loop.Submit(func() { close(done) }))
		<-done

		assert.Equal(t, StateCancelled, p.State(), "fd %d reused as %d", oldFd, fd)
		assert.Zero(t, stale.Load())
	}
}

func TestPollAsync_closeWhilePendingOnLoop(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	p := pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, 5*time.Second)
	require.NoError(t, pipe.ReadEnd.Close())
	require.NoError(t, pipe.ReadEnd.Close())

	o := waitSettled(t, p)
	assert.Equal(t, StateFailed, o.State)
	assert.ErrorIs(t, o.Cause, ErrClosedDescriptor)
}

func TestPoller_closeWithPendingPollIsLogged(t *testing.T) {
	var buf syncBuffer
	loop := startLoop(t)
	x := newTestPoller(t, loop, WithLogger(newTestLoggerAt(&buf, logiface.LevelInformational)))
	pipe := newTestPipe(t)

	p := pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, 5*time.Second)
	require.NoError(t, pipe.ReadEnd.Close())
	require.Equal(t, StateFailed, waitSettled(t, p).State)

	logs := buf.String()
	assert.Contains(t, logs, `"msg":"descriptor closed with pending poll"`)
	assert.Contains(t, logs, `"fd":"pipe.r"`)
	assert.Contains(t, logs, `"interest":"readable"`)
	assert.Equal(t, 1, strings.Count(logs, "\n"), logs)

	// settled before close, nothing to report
	buf.buf.Reset()
	q := x.PollAsync(context.Background(), pipe.WriteEnd, Writable, 0)
	require.Equal(t, StateReady, q.State())
	require.NoError(t, pipe.WriteEnd.Close())
	assert.Empty(t, buf.String())
}

func TestPollAsync_thenRunsOnLoop(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	type result struct {
		o      Outcome
		err    error
		onLoop bool
	}
	ch := make(chan result, 1)
	require.NoError(t, loop.Submit(func() {
		x.PollAsync(context.Background(), pipe.ReadEnd, Readable, time.Second).
			Then(func(o Outcome, err error) {
				ch <- result{o, err, loop.IsLoopGoroutine()}
			})
	}))
	time.Sleep(10 * time.Millisecond)
	_, err := Write(pipe.WriteEnd, []byte("x"))
	require.NoError(t, err)

	select {
	case r := <-ch:
		assert.NoError(t, r.err)
		assert.Equal(t, StateReady, r.o.State)
		assert.True(t, r.onLoop)
	case <-time.After(5 * time.Second):
		t.Fatal("continuation did not run")
	}
}

func TestPollAsync_waitOnLoopGoroutine(t *testing.T) {
	loop := startLoop(t)
	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	errCh := make(chan error, 1)
	require.NoError(t, loop.Submit(func() {
		p := x.PollAsync(context.Background(), pipe.ReadEnd, Readable, time.Hour)
		_, err := p.Wait(context.Background())
		p.Cancel()
		errCh <- err
	}))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrWaitOnLoop)
	case <-time.After(5 * time.Second):
		t.Fatal("wait deadlocked")
	}
}

func TestPollAsync_loopShutdownFailsPendingPolls(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(context.Background()) }()

	x := newTestPoller(t, loop)
	pipe := newTestPipe(t)

	p := pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, NoTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.Shutdown(ctx))
	require.NoError(t, <-runErr)

	o := waitSettled(t, p)
	assert.Equal(t, StateFailed, o.State)
	assert.ErrorIs(t, o.Cause, eventloop.ErrLoopTerminated)
	assert.Equal(t, eventloop.Rejected, p.Promise().State())
	assert.Zero(t, pipe.ReadEnd.pendingCount())

	q := x.PollAsync(context.Background(), pipe.ReadEnd, Readable, time.Second)
	assert.ErrorIs(t, q.Err(), eventloop.ErrLoopTerminated)
}

func TestPoller_logging(t *testing.T) {
	var buf syncBuffer
	loop := startLoop(t)
	x := newTestPoller(t, loop, WithLogger(newTestLogger(&buf)), WithMetrics(true))
	pipe := newTestPipe(t)

	o := waitSettled(t, pollOnLoop(t, loop, x, pipe.ReadEnd, Readable, 20*time.Millisecond))
	require.Equal(t, StateTimedOut, o.State)

	logs := buf.String()
	assert.Contains(t, logs, `"msg":"poll suspended"`)
	assert.Contains(t, logs, `"msg":"poll settled"`)
	assert.Contains(t, logs, `"component":"ospoll"`)
	assert.Contains(t, logs, `"state":"TimedOut"`)
	assert.Contains(t, logs, `"fd":"pipe.r"`)
	assert.Equal(t, 2, strings.Count(logs, "\n"))

	m := x.Metrics()
	assert.Equal(t, uint64(1), m.TimedOut)
	assert.Equal(t, 1, m.Suspension.Count)
	assert.GreaterOrEqual(t, m.Suspension.Max, 20*time.Millisecond)
}
