package event

import "sync"

// Queue delivers enqueued callbacks one at a time in FIFO order.
//
// Producers typically [Queue.Enqueue] while holding their own state lock, so
// that the enqueue order matches the order of the state mutations, and call
// [Queue.Drain] after releasing it. Drain runs the callbacks on the calling
// goroutine unless another goroutine is already draining, in which case that
// goroutine picks the new callbacks up. A callback that enqueues further work
// never recurses: the work runs after the callback returns.
//
// The zero value is ready to use.
type Queue struct {
	mu       sync.Mutex
	pending  []func()
	draining bool
}

// Enqueue appends fn without running it. Nil callbacks are ignored.
func (q *Queue) Enqueue(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Drain runs pending callbacks until the queue is empty. It returns
// immediately when another goroutine is already draining.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true

	for len(q.pending) > 0 {
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(fn)

		q.mu.Lock()
	}
	q.pending = nil
	q.draining = false
	q.mu.Unlock()
}

// Post enqueues fn and drains the queue.
func (q *Queue) Post(fn func()) {
	q.Enqueue(fn)
	q.Drain()
}

// run calls fn and clears the draining flag if fn panics, so that a single
// misbehaving handler does not stall every later delivery.
func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
			panic(r)
		}
	}()
	fn()
}
