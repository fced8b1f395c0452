// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
)

// chunkSize is the number of tasks per node in the chunked linked list.
const chunkSize = 128

// chunkedQueue is a FIFO of tasks stored as a linked list of fixed-size
// arrays, so steady-state pushes and pops do not allocate.
//
// NOT thread-safe, see [taskQueue].
type chunkedQueue struct {
	head   *chunk
	tail   *chunk
	length int
}

// chunkPool prevents GC thrashing under high load.
var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node, with read and write cursors.
type chunk struct {
	tasks   [chunkSize]func()
	next    *chunk
	readPos int
	pos     int
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk clears any retained closures before pooling c.
func returnChunk(c *chunk) {
	clear(c.tasks[:c.pos])
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

func (q *chunkedQueue) push(task func()) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.tasks) {
		next := newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.tasks[q.tail.pos] = task
	q.tail.pos++
	q.length++
}

func (q *chunkedQueue) pop() (func(), bool) {
	if q.head == nil || q.head.readPos >= q.head.pos {
		return nil, false
	}

	task := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = nil
	q.head.readPos++
	q.length--

	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			old := q.head
			q.head = q.head.next
			returnChunk(old)
		}
	}

	return task, true
}

// taskQueue is the mutex-guarded MPSC queue feeding the loop.
type taskQueue struct {
	q  chunkedQueue
	mu sync.Mutex
}

// Push enqueues task. THREAD SAFE.
func (t *taskQueue) Push(task func()) {
	t.mu.Lock()
	t.q.push(task)
	t.mu.Unlock()
}

// PopBatch moves up to len(buf) tasks into buf, returning the count.
// Only called from the loop goroutine.
func (t *taskQueue) PopBatch(buf []func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for n < len(buf) {
		task, ok := t.q.pop()
		if !ok {
			break
		}
		buf[n] = task
		n++
	}
	return n
}

// Length returns the number of queued tasks. THREAD SAFE.
func (t *taskQueue) Length() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.length
}
