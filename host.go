package mutter

import (
	"context"
	"sync"
)

// Host supplies the task queue a Runtime runs on.
type Host interface {
	// Defer runs task after the current synchronous turn completes and
	// before the next posted task. It is called from the runtime's thread.
	Defer(task func())

	// Post enqueues an externally triggered task. It is safe to call from
	// any goroutine.
	Post(task func())
}

// Queue is a cooperative Host driven by explicit Drain calls. It suits
// synchronous embeddings and deterministic tests.
type Queue struct {
	mu       sync.Mutex
	deferred []func()
	posted   []func()
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Defer implements Host.
func (q *Queue) Defer(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deferred = append(q.deferred, task)
}

// Post implements Host.
func (q *Queue) Post(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.posted = append(q.posted, task)
}

// Drain runs tasks in the calling goroutine until both queues are empty.
// Deferred tasks always run before the next posted task. Returns the number
// of tasks run.
func (q *Queue) Drain() int {
	ran := 0
	for {
		task := q.next()
		if task == nil {
			return ran
		}
		task()
		ran++
	}
}

// Pending returns the number of queued tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deferred) + len(q.posted)
}

func (q *Queue) next() func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.deferred) > 0 {
		task := q.deferred[0]
		q.deferred = q.deferred[1:]
		return task
	}
	if len(q.posted) > 0 {
		task := q.posted[0]
		q.posted = q.posted[1:]
		return task
	}
	return nil
}

// Loop is a Host backed by a single goroutine event loop. Every runtime
// call should be made from a task running on the loop, e.g. through Do.
type Loop struct {
	mu       sync.Mutex
	deferred []func()
	posted   []func()
	wake     chan struct{}
}

// NewLoop creates a Loop. Call Run to start processing tasks.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Defer implements Host.
func (l *Loop) Defer(task func()) {
	l.mu.Lock()
	l.deferred = append(l.deferred, task)
	l.mu.Unlock()
	l.signal()
}

// Post implements Host.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	l.posted = append(l.posted, task)
	l.mu.Unlock()
	l.signal()
}

// Do posts fn and waits until it has run, or until ctx is done.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for task := l.next(); task != nil; task = l.next() {
			task()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.deferred) > 0 {
		task := l.deferred[0]
		l.deferred = l.deferred[1:]
		return task
	}
	if len(l.posted) > 0 {
		task := l.posted[0]
		l.posted = l.posted[1:]
		return task
	}
	return nil
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
