// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of loop runtime statistics, see [Loop.Metrics].
//
// Example:
//
//	loop, _ := New(WithMetrics(true))
//	go loop.Run(ctx)
//	stats := loop.Metrics()
//	fmt.Printf("TPS: %.2f, P99 task latency: %v\n", stats.TPS, stats.Latency.P99)
type Metrics struct {
	// Latency is the distribution of task execution durations.
	Latency LatencySnapshot

	// Queue holds the queue depths observed at the start of each tick.
	Queue QueueSnapshot

	// TPS is tasks executed per second, averaged over the counter window.
	TPS float64

	// Ticks is the number of completed loop iterations.
	Ticks uint64
}

// LatencySnapshot holds percentiles computed by [LatencyMetrics.Sample].
type LatencySnapshot struct {
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// LatencyMetrics tracks a latency distribution over a rolling window of
// the most recent samples. THREAD SAFE.
type LatencyMetrics struct {
	samples     [sampleSize]time.Duration
	sampleIdx   int
	sampleCount int
	sum         time.Duration
	mu          sync.Mutex
}

// sampleSize is the number of latency samples retained.
const sampleSize = 1000

// Record adds a sample, evicting the oldest once the window is full.
func (l *LatencyMetrics) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sampleCount >= sampleSize {
		l.sum -= l.samples[l.sampleIdx]
	} else {
		l.sampleCount++
	}
	l.samples[l.sampleIdx] = d
	l.sum += d
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
}

// Sample computes percentiles over the retained samples. Sorting is
// O(n log n), so call it at monitoring frequency, not per event.
func (l *LatencyMetrics) Sample() LatencySnapshot {
	l.mu.Lock()
	count := l.sampleCount
	if count == 0 {
		l.mu.Unlock()
		return LatencySnapshot{}
	}
	sorted := slices.Clone(l.samples[:count])
	sum := l.sum
	l.mu.Unlock()

	slices.Sort(sorted)

	return LatencySnapshot{
		P50:   sorted[percentileIndex(count, 50)],
		P90:   sorted[percentileIndex(count, 90)],
		P99:   sorted[percentileIndex(count, 99)],
		Max:   sorted[count-1],
		Mean:  sum / time.Duration(count),
		Count: count,
	}
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// QueueSnapshot holds current, maximum and average queue depths.
type QueueSnapshot struct {
	ExternalCurrent int
	ExternalMax     int
	ExternalAvg     float64
	InternalCurrent int
	InternalMax     int
	InternalAvg     float64
}

// queueMetrics tracks queue depths, with an exponential moving average
// (alpha=0.1) warm-started from the first observation.
type queueMetrics struct {
	snap        QueueSnapshot
	initialized bool
	mu          sync.Mutex
}

func (q *queueMetrics) update(external, internal int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.snap.ExternalCurrent = external
	q.snap.InternalCurrent = internal
	q.snap.ExternalMax = max(q.snap.ExternalMax, external)
	q.snap.InternalMax = max(q.snap.InternalMax, internal)
	if !q.initialized {
		q.snap.ExternalAvg = float64(external)
		q.snap.InternalAvg = float64(internal)
		q.initialized = true
		return
	}
	q.snap.ExternalAvg = 0.9*q.snap.ExternalAvg + 0.1*float64(external)
	q.snap.InternalAvg = 0.9*q.snap.InternalAvg + 0.1*float64(internal)
}

func (q *queueMetrics) snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snap
}

// TPSCounter tracks events per second over a rolling window of buckets.
// TPS reads low until the first window has elapsed. THREAD SAFE.
type TPSCounter struct {
	lastRotation time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	totalCount   atomic.Int64
	mu           sync.Mutex
}

// NewTPSCounter creates a counter, e.g. NewTPSCounter(10*time.Second,
// 100*time.Millisecond).
func NewTPSCounter(windowSize, bucketSize time.Duration) *TPSCounter {
	if bucketSize <= 0 {
		bucketSize = windowSize
	}
	bucketCount := max(int(windowSize/bucketSize), 1)
	return &TPSCounter{
		lastRotation: time.Now(),
		buckets:      make([]int64, bucketCount),
		bucketSize:   bucketSize,
		windowSize:   windowSize,
	}
}

// Increment records one event.
func (t *TPSCounter) Increment() {
	t.totalCount.Add(1)
	t.mu.Lock()
	t.rotateLocked(time.Now())
	t.buckets[len(t.buckets)-1]++
	t.mu.Unlock()
}

// Total returns the number of events ever recorded.
func (t *TPSCounter) Total() int64 {
	return t.totalCount.Load()
}

// TPS returns the current events per second.
func (t *TPSCounter) TPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotateLocked(time.Now())
	var sum int64
	for _, n := range t.buckets {
		sum += n
	}
	if sum == 0 {
		return 0
	}
	return float64(sum) / t.windowSize.Seconds()
}

func (t *TPSCounter) rotateLocked(now time.Time) {
	advance := int(now.Sub(t.lastRotation) / t.bucketSize)
	if advance <= 0 {
		return
	}
	if advance >= len(t.buckets) {
		clear(t.buckets)
		t.lastRotation = now
		return
	}
	copy(t.buckets, t.buckets[advance:])
	clear(t.buckets[len(t.buckets)-advance:])
	t.lastRotation = t.lastRotation.Add(time.Duration(advance) * t.bucketSize)
}

// loopMetrics is the loop's collector, nil when disabled.
type loopMetrics struct {
	latency LatencyMetrics
	queue   queueMetrics
	tps     *TPSCounter
	ticks   atomic.Uint64
}

func newLoopMetrics() *loopMetrics {
	return &loopMetrics{tps: NewTPSCounter(10*time.Second, 100*time.Millisecond)}
}
