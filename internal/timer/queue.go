// internal/timer/queue.go
// Package timer provides a single-threaded delay queue that runs on a virtual
// clock. The owner advances the clock explicitly (normally from the audio
// sample count), so deferred work fires on the same goroutine as the code that
// scheduled it and no locking is needed.
package timer

import (
	"container/heap"
	"time"
)

// Handle cancels a scheduled task.
type Handle interface {
	// Stop prevents the task from running. It reports whether the call
	// stopped the task; calling it again, or after the task ran, returns false.
	Stop() bool
}

// Scheduler is the deferred-execution facility used by decoders.
type Scheduler interface {
	// Now returns the current virtual time.
	Now() time.Duration
	// AfterFunc schedules f to run once the clock has advanced by d.
	AfterFunc(d time.Duration, f func()) Handle
}

// Task is a scheduled function. It implements Handle.
type Task struct {
	at       time.Duration
	seq      uint64
	fn       func()
	q        *Queue
	stopped  bool
	finished bool
}

// Stop cancels the task in O(1); the queue drops it lazily when it surfaces.
func (t *Task) Stop() bool {
	if t == nil || t.stopped || t.finished {
		return false
	}
	t.stopped = true
	t.q.live--
	return true
}

// Queue is a virtual-time delay queue. It is not safe for concurrent use.
type Queue struct {
	now   time.Duration
	seq   uint64
	tasks taskHeap
	live  int
}

// NewQueue returns an empty queue with the clock at zero.
func NewQueue() *Queue {
	return &Queue{}
}

// Now returns the current virtual time.
func (q *Queue) Now() time.Duration {
	return q.now
}

// AfterFunc schedules f to run at Now()+d. Negative delays run at Now().
func (q *Queue) AfterFunc(d time.Duration, f func()) Handle {
	return q.schedule(d, f)
}

func (q *Queue) schedule(d time.Duration, f func()) *Task {
	if d < 0 {
		d = 0
	}
	q.seq++
	t := &Task{at: q.now + d, seq: q.seq, fn: f, q: q}
	heap.Push(&q.tasks, t)
	q.live++
	return t
}

// AdvanceTo moves the clock forward to t, running every task due at or
// before t in deadline order (FIFO among equal deadlines). While a task runs
// Now() reports its deadline, so tasks scheduled from inside a callback are
// timed relative to the moment it fired. Returns the number of tasks run.
// Moving the clock backwards is ignored.
func (q *Queue) AdvanceTo(t time.Duration) int {
	ran := 0
	for q.tasks.Len() > 0 {
		next := q.tasks[0]
		if next.at > t {
			break
		}
		heap.Pop(&q.tasks)
		if next.stopped {
			continue
		}
		if next.at > q.now {
			q.now = next.at
		}
		next.finished = true
		q.live--
		next.fn()
		ran++
	}
	if t > q.now {
		q.now = t
	}
	return ran
}

// Advance moves the clock forward by d. See AdvanceTo.
func (q *Queue) Advance(d time.Duration) int {
	return q.AdvanceTo(q.now + d)
}

// Pending returns the number of tasks that are scheduled and not stopped.
func (q *Queue) Pending() int {
	return q.live
}

// StopAll cancels every pending task without running it.
func (q *Queue) StopAll() {
	for _, t := range q.tasks {
		if !t.stopped && !t.finished {
			t.stopped = true
		}
	}
	q.tasks = q.tasks[:0]
	q.live = 0
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
