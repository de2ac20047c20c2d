package workerpool

import (
	"context"
	"time"
)

const minQueueCapacity = 16

// job is a queued task wrapped together with the code that fulfils its
// result handle.
type job struct {
	id       uint64
	enqueued time.Time

	// call runs the user's task. It may panic.
	call func(ctx context.Context) error

	// settle stores the outcome of call in the task's Future. It runs exactly
	// once, on the worker that executed call.
	settle func(err error)
}

// taskQueue is an unbounded FIFO ring buffer. It is not safe for concurrent
// use; the pool guards it with its mutex.
type taskQueue struct {
	buf  []*job
	head int
	size int
}

func (q *taskQueue) len() int {
	return q.size
}

func (q *taskQueue) push(j *job) {
	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = j
	q.size++
}

// pop removes and returns the oldest job, or nil when the queue is empty.
func (q *taskQueue) pop() *job {
	if q.size == 0 {
		return nil
	}
	j := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	if q.size == 0 {
		q.head = 0
	}
	return j
}

func (q *taskQueue) grow() {
	capacity := len(q.buf) * 2
	if capacity < minQueueCapacity {
		capacity = minQueueCapacity
	}
	buf := make([]*job, capacity)
	for i := 0; i < q.size; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
