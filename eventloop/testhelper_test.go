// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package eventloop

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// startLoop runs a new loop in the background, stopping it on cleanup.
func startLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := New(opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()
	waitRunning(t, loop)

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

// waitRunning waits for Run to have started (Running or Sleeping).
func waitRunning(t *testing.T, loop *Loop) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		switch loop.State() {
		case StateRunning, StateSleeping:
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("loop failed to start (state %v)", loop.State())
}

// waitLoopState waits for a loop to reach a specific state within a timeout.
func waitLoopState(t *testing.T, loop *Loop, expected LoopState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for loop.State() != expected && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if state := loop.State(); state != expected {
		t.Fatalf("loop failed to reach %v state (got %v)", expected, state)
	}
}

// runOnLoop runs fn on the loop goroutine and waits for it.
func runOnLoop(t *testing.T, loop *Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, loop.Submit(func() {
		defer close(done)
		fn()
	}))
	waitClosed(t, done)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

// testPipe creates a non-blocking pipe, closed on cleanup.
func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	for _, fd := range fds {
		require.NoError(t, unix.SetNonblock(fd, true))
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// syncBuffer is a goroutine safe bytes.Buffer, for capturing logs.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

// interestCount returns the number of live registrations for fd.
func (p *FastPoller) interestCount(fd int) int {
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	if info := p.table.fds[fd]; info != nil {
		return len(info.entries)
	}
	return 0
}
