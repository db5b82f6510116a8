package future

import (
	"context"
	"sync"
)

// Future is a value that becomes available at some point.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns an already completed future.
func Completed[T any](value T) *Future[T] {
	f := New[T]()
	f.Complete(value)
	return f
}

// Failed returns an already failed future.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.CompleteExceptionally(err)
	return f
}

// Complete sets the value. It returns false if the future was already completed.
func (f *Future[T]) Complete(value T) bool {
	return f.complete(value, nil)
}

// CompleteExceptionally sets the error. It returns false if the future was
// already completed.
func (f *Future[T]) CompleteExceptionally(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(value T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed once the future is completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get waits for the result or for ctx to end.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the result of a completed future without blocking.
// ok is false while the future is pending.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	if !f.IsDone() {
		return value, nil, false
	}
	return f.value, f.err, true
}

// Then calls fn with the result once the future completes. fn runs on the
// completing goroutine or, if already completed, immediately.
func (f *Future[T]) Then(fn func(T, error)) {
	if f.IsDone() {
		fn(f.value, f.err)
		return
	}
	go func() {
		<-f.done
		fn(f.value, f.err)
	}()
}
