// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
	"weak"
)

// registry tracks unsettled promises using weak pointers, so that promises
// nobody references can still be garbage collected. On shutdown, every
// promise still reachable and pending is rejected.
type registry struct {
	// data stores weak pointers to promises.
	data map[uint64]weak.Pointer[promise]

	// ring is a circular buffer of IDs used for scavenging, 0 marks a hole.
	ring []uint64

	// head is the scavenger's cursor into ring.
	head int

	nextID uint64
	mu     sync.Mutex
}

func newRegistry() *registry {
	return &registry{
		data:   make(map[uint64]weak.Pointer[promise]),
		ring:   make([]uint64, 0, 64),
		nextID: 1,
	}
}

// NewPromise creates and registers a new pending promise.
func (r *registry) NewPromise() (uint64, *promise) {
	p := &promise{state: Pending}
	wp := weak.Make(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.data[id] = wp
	r.ring = append(r.ring, id)

	return id, p
}

// Scavenge checks up to batchSize ring entries, dropping promises that were
// collected or have settled.
func (r *registry) Scavenge(batchSize int) {
	if batchSize <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ringLen := len(r.ring)
	if ringLen == 0 {
		return
	}

	end := min(r.head+batchSize, ringLen)
	for i := r.head; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		wp, ok := r.data[id]
		if ok {
			if p := wp.Value(); p != nil && p.State() == Pending {
				continue
			}
			delete(r.data, id)
		}
		r.ring[i] = 0
	}

	if end < ringLen {
		r.head = end
		return
	}

	r.head = 0
	// compact once the load factor drops below 25%
	if ringLen > 256 && len(r.data) < ringLen/4 {
		r.compactAndRenew()
	}
}

// RejectAll rejects all pending promises with err. Promise observers are
// invoked outside the registry lock.
func (r *registry) RejectAll(err error) {
	r.mu.Lock()
	pending := make([]*promise, 0, len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if wp, ok := r.data[id]; ok {
			if p := wp.Value(); p != nil {
				pending = append(pending, p)
			}
		}
	}
	r.data = make(map[uint64]weak.Pointer[promise])
	r.ring = r.ring[:0]
	r.head = 0
	r.mu.Unlock()

	// registration order
	for _, p := range pending {
		p.Reject(err)
	}
}

// Len returns the number of tracked promises, some of which may already be
// settled or collected.
func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// compactAndRenew drops holes from the ring and rebuilds the map, since
// delete does not shrink a map. Must be called with mu held.
func (r *registry) compactAndRenew() {
	newRing := make([]uint64, 0, len(r.data))
	newData := make(map[uint64]weak.Pointer[promise], len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if wp, ok := r.data[id]; ok {
			newRing = append(newRing, id)
			newData[id] = wp
		}
	}
	r.ring = newRing
	r.data = newData
}
