// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"container/heap"
	"sync"
	"time"
)

// TimerID identifies a scheduled timer. Zero is never a valid ID.
type TimerID uint64

// timer represents a scheduled task.
type timer struct {
	when  time.Time
	fn    func()
	id    TimerID
	seq   uint64 // insertion order, breaks ties between equal deadlines
	index int    // position in the heap, maintained by heap.Interface
}

// timerHeap is a min-heap of timers, by deadline then insertion order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timerSet is the loop's timer registry. Scheduling and cancellation are
// safe from any goroutine; expiry is driven by the loop.
type timerSet struct {
	byID   map[TimerID]*timer
	heap   timerHeap
	nextID TimerID
	seq    uint64
	mu     sync.Mutex
}

// add schedules fn and reports whether it became the earliest timer.
func (s *timerSet) add(when time.Time, fn func()) (TimerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.seq++
	t := &timer{when: when, fn: fn, id: s.nextID, seq: s.seq}
	if s.byID == nil {
		s.byID = make(map[TimerID]*timer)
	}
	s.byID[t.id] = t
	heap.Push(&s.heap, t)
	return t.id, t.index == 0
}

func (s *timerSet) cancel(id TimerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	heap.Remove(&s.heap, t.index)
	return true
}

// popExpired removes and returns the earliest timer due at or before now.
func (s *timerSet) popExpired(now time.Time) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 || s.heap[0].when.After(now) {
		return nil, false
	}
	t := heap.Pop(&s.heap).(*timer)
	delete(s.byID, t.id)
	return t.fn, true
}

// next returns the earliest deadline, if any.
func (s *timerSet) next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return time.Time{}, false
	}
	return s.heap[0].when, true
}

func (s *timerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// clear drops every timer, returning how many were pending.
func (s *timerSet) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.heap)
	s.heap = nil
	s.byID = nil
	return n
}
