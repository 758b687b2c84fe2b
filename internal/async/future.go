// Package async holds single-assignment result values shared between an
// operation running in the background and whoever wants to observe it.
package async

import (
	"context"
	"sync"
)

// Future is a value that is resolved exactly once. Observers can block on it
// with Wait, select on Done, or register callbacks with OnComplete.
type Future[T any] struct {
	mu        sync.Mutex
	resolved  bool
	value     T
	done      chan struct{}
	callbacks []func(T)
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Go runs fn in its own goroutine and resolves the returned future with its result.
func Go[T any](fn func() T) *Future[T] {
	f := New[T]()
	go func() {
		f.Resolve(fn())
	}()
	return f
}

// Resolve sets the value. Only the first call has an effect; it reports
// whether this call was the one that resolved the future.
func (f *Future[T]) Resolve(v T) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.value = v
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v)
	}
	return true
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value returns the resolved value and whether the future has been resolved.
func (f *Future[T]) Value() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.resolved
}

// OnComplete registers cb to run with the resolved value. If the future is
// already resolved cb runs immediately on the calling goroutine.
func (f *Future[T]) OnComplete(cb func(T)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	v := f.value
	f.mu.Unlock()
	cb(v)
}
