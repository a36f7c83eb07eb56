package memcache

import (
	"context"
	"sync"

	"github.com/pior/memcache-async/reactor"
	"github.com/pior/memcache-async/text"
)

// Result is the completion handle of a command.
//
// It completes exactly once, with a reply or an error. Continuations
// registered with Then always run on the client's loop, on a later tick
// than the completion itself, so a handler attached right after issuing a
// command never misses it.
type Result struct {
	loop *reactor.Loop

	mu        sync.Mutex
	done      chan struct{}
	completed bool
	reply     text.Reply
	err       error
	callbacks []func(text.Reply, error)
}

func newResult(loop *reactor.Loop) *Result {
	return &Result{
		loop: loop,
		done: make(chan struct{}),
	}
}

// complete records the outcome. Only the first call has an effect.
func (r *Result) complete(reply text.Reply, err error) bool {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return false
	}
	r.completed = true
	r.reply = reply
	r.err = err
	callbacks := r.callbacks
	r.callbacks = nil
	close(r.done)
	r.mu.Unlock()

	for _, fn := range callbacks {
		r.schedule(fn, reply, err)
	}
	return true
}

func (r *Result) schedule(fn func(text.Reply, error), reply text.Reply, err error) {
	r.loop.Post(func() {
		fn(reply, err)
	})
}

// Then registers fn to run on the loop once the result completes.
func (r *Result) Then(fn func(reply text.Reply, err error)) *Result {
	r.mu.Lock()
	if !r.completed {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return r
	}
	reply, err := r.reply, r.err
	r.mu.Unlock()

	r.schedule(fn, reply, err)
	return r
}

// Done is closed once the result completed.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result completes or ctx is done.
// It must not be called from the loop goroutine: the loop would never get to
// complete the result.
func (r *Result) Wait(ctx context.Context) (text.Reply, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.reply, r.err
	case <-ctx.Done():
		return text.Reply{}, ctx.Err()
	}
}
