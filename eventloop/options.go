// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// defaultMaxPollDelay caps a single multiplexer wait when no timer is due.
const defaultMaxPollDelay = 10 * time.Second

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger       *logiface.Logger[logiface.Event]
	maxPollDelay time.Duration
	metrics      bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger to the loop. Task panics are logged
// at error level, multiplexer failures at critical, lifecycle at debug.
// A nil logger disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxPollDelay bounds how long a single multiplexer wait may block when
// there is no earlier timer. It must be positive.
func WithMaxPollDelay(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return fmt.Errorf("eventloop: max poll delay must be positive, got %v", d)
		}
		opts.maxPollDelay = d
		return nil
	}}
}

// WithMetrics enables task latency, queue depth and throughput collection,
// readable via [Loop.Metrics].
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metrics = enabled
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		maxPollDelay: defaultMaxPollDelay,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
