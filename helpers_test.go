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
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/go-ospoll/eventloop"
	"github.com/stretchr/testify/require"
)

// startLoop runs a new loop in the background, stopping it on cleanup.
func startLoop(t *testing.T, opts ...eventloop.LoopOption) *eventloop.Loop {
	t.Helper()
	loop, err := eventloop.New(opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for loop.State() != eventloop.StateRunning && loop.State() != eventloop.StateSleeping {
		if time.Now().After(deadline) {
			t.Fatalf("loop failed to start (state %v)", loop.State())
		}
		time.Sleep(time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-runErr:
		case <-time.After(5 * time.Second):
			t.Error("loop did not stop")
		}
	})
	return loop
}

func newTestPoller(t *testing.T, reactor Reactor, opts ...PollerOption) *Poller {
	t.Helper()
	x, err := NewPoller(reactor, opts...)
	require.NoError(t, err)
	return x
}

// newTestPipe creates a pipe, closed on cleanup.
func newTestPipe(t *testing.T) *Pipe {
	t.Helper()
	p, err := CreatePipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// fillPipe writes until the pipe is full, returning the byte count.
func fillPipe(t *testing.T, d *Descriptor) int {
	t.Helper()
	chunk := bytes.Repeat([]byte{'x'}, 4096)
	var total int
	for {
		n, err := Write(d, chunk)
		total += n
		if errors.Is(err, ErrWouldBlock) {
			return total
		}
		require.NoError(t, err)
	}
}

// pollOnLoop issues PollAsync from a loop task, as a suspended task would.
func pollOnLoop(t *testing.T, loop *eventloop.Loop, x *Poller, d *Descriptor, interest Interest, timeout time.Duration) *Pending {
	t.Helper()
	ch := make(chan *Pending, 1)
	require.NoError(t, loop.Submit(func() {
		ch <- x.PollAsync(context.Background(), d, interest, timeout)
	}))
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out issuing poll")
		return nil
	}
}

func waitSettled(t *testing.T, p *Pending) Outcome {
	t.Helper()
	select {
	case <-p.Done():
		return p.Outcome()
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not settle")
		return Outcome{}
	}
}

// pendingCount returns the number of polls attached to d.
func (d *Descriptor) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
