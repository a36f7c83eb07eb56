// Package reactor provides a minimal cooperative scheduler.
//
// A Loop runs posted tasks one at a time, in posting order, on a single
// goroutine. Tasks run to completion and never interleave, so state touched
// only from tasks needs no further synchronization. Posting a task is the
// "next tick" primitive: the task runs after the caller's current frame.
package reactor

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLoopStopped = errors.New("reactor: loop stopped")

// Loop is a single-goroutine task queue.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
	running bool
}

// New returns a loop. Tasks may be posted before Run is called; they run
// once the loop starts.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Post schedules task on the loop. It never blocks and never runs task
// inline. Tasks posted after Stop are dropped and Post returns false.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// After posts task once d has elapsed. The returned function cancels the
// timer and reports whether it was cancelled before firing.
func (l *Loop) After(d time.Duration, task func()) (cancel func() bool) {
	t := time.AfterFunc(d, func() {
		l.Post(task)
	})
	return t.Stop
}

// Run executes tasks until ctx is done or Stop is called.
// Only one Run may be active at a time.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("reactor: loop already running")
	}
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			task()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case <-l.wake:
		}
	}
}

// next pops the oldest task.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || len(l.tasks) == 0 {
		return nil, false
	}

	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	if len(l.tasks) == 0 {
		l.tasks = nil
	}
	return task, true
}

// Stop makes Run return after the current task and drops pending tasks.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	l.stopped = true
	l.tasks = nil
	close(l.stop)
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}
