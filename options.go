// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// defaultLogRateLimits bounds noisy diagnostics, per category.
var defaultLogRateLimits = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// pollerOptions holds configuration options for Poller creation.
type pollerOptions struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	metrics bool
}

// PollerOption configures a Poller instance.
type PollerOption interface {
	applyPoller(*pollerOptions) error
}

// pollerOptionImpl implements PollerOption.
type pollerOptionImpl struct {
	applyPollerFunc func(*pollerOptions) error
}

func (p *pollerOptionImpl) applyPoller(opts *pollerOptions) error {
	return p.applyPollerFunc(opts)
}

// WithLogger attaches a structured logger. Settled polls are logged at debug
// level, as are retried and stale wakeups, which are rate limited (see
// [WithLogRateLimits]). A nil logger disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) PollerOption {
	return &pollerOptionImpl{func(opts *pollerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables outcome counters and suspension latency collection,
// readable via [Poller.Metrics].
func WithMetrics(enabled bool) PollerOption {
	return &pollerOptionImpl{func(opts *pollerOptions) error {
		opts.metrics = enabled
		return nil
	}}
}

// WithLogRateLimits sets the sliding window limits applied, per category, to
// noisy diagnostics. An empty map disables rate limiting. Rates must be
// positive, and each longer window must allow more events, at a lower rate,
// than the shorter ones. The default is 5 per second and 60 per minute.
func WithLogRateLimits(rates map[time.Duration]int) PollerOption {
	return &pollerOptionImpl{func(opts *pollerOptions) (err error) {
		if len(rates) == 0 {
			opts.limiter = nil
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ospoll: invalid log rate limits: %v", r)
			}
		}()
		opts.limiter = catrate.NewLimiter(rates)
		return nil
	}}
}

// resolvePollerOptions applies PollerOption instances to pollerOptions.
func resolvePollerOptions(opts []PollerOption) (*pollerOptions, error) {
	cfg := &pollerOptions{
		limiter: catrate.NewLimiter(defaultLogRateLimits),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyPoller(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
