package reporting

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Future holds the single terminal result of an asynchronous step. The first
// Resolve or Reject wins; later ones are dropped.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Go runs fn on its own goroutine. A panic in fn rejects the future.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("panic: %v", r))
			}
		}()
		v, err := fn()
		f.complete(v, err)
	}()
	return f
}

func (f *Future[T]) Resolve(v T) bool { return f.complete(v, nil) }

func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		won = true
	})
	return won
}

func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get waits for the result or for ctx to end.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WithTimeout races f against a deadline. If the deadline fires first the
// returned future is rejected with ErrTimedOut and f's eventual result is
// discarded; f itself keeps running. A non-positive d means no deadline.
func WithTimeout[T any](f *Future[T], d time.Duration) *Future[T] {
	if d <= 0 {
		return f
	}
	out := NewFuture[T]()
	timer := time.AfterFunc(d, func() {
		out.Reject(fmt.Errorf("%w after %v", ErrTimedOut, d))
	})
	go func() {
		<-f.Done()
		timer.Stop()
		out.complete(f.val, f.err)
	}()
	return out
}
