package authz

import (
	"context"
	"sync"
)

// Executor runs continuations. It decides on which goroutine a completion
// callback observes the result.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(fn func())

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

var (
	// Inline runs the function on the calling goroutine.
	Inline Executor = ExecutorFunc(func(fn func()) { fn() })

	// Goroutine runs the function on a new goroutine.
	Goroutine Executor = ExecutorFunc(func(fn func()) { go fn() })
)

// Operation is the pending result of an asynchronous token request. It
// completes exactly once with either an access token or an error.
type Operation struct {
	done chan struct{}

	mu        sync.Mutex
	completed bool
	token     string
	err       error
	callbacks []continuation
}

type continuation struct {
	exec Executor
	fn   func(token string, err error)
}

func newOperation() *Operation {
	return &Operation{done: make(chan struct{})}
}

// completedOperation returns an already finished operation.
func completedOperation(token string, err error) *Operation {
	op := newOperation()
	op.complete(token, err)
	return op
}

// Done returns a channel closed when the operation completed.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation completed or ctx is done. Cancelling ctx
// only stops waiting; the operation itself keeps running.
func (o *Operation) Wait(ctx context.Context) (string, error) {
	select {
	case <-o.done:
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.token, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// OnComplete schedules fn on exec once the operation completed. If it has
// already completed, fn is scheduled immediately.
func (o *Operation) OnComplete(exec Executor, fn func(token string, err error)) {
	if exec == nil {
		exec = Inline
	}

	o.mu.Lock()
	if !o.completed {
		o.callbacks = append(o.callbacks, continuation{exec: exec, fn: fn})
		o.mu.Unlock()
		return
	}
	token, err := o.token, o.err
	o.mu.Unlock()

	exec.Execute(func() { fn(token, err) })
}

func (o *Operation) complete(token string, err error) {
	o.mu.Lock()
	if o.completed {
		o.mu.Unlock()
		return
	}
	o.completed = true
	o.token, o.err = token, err
	callbacks := o.callbacks
	o.callbacks = nil
	close(o.done)
	o.mu.Unlock()

	for _, c := range callbacks {
		c.exec.Execute(func() { c.fn(token, err) })
	}
}
