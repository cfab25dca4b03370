package pyfunc

import (
	"context"

	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Future is the pending result of an asynchronous compute call.
type Future struct {
	done chan struct{}
	out  value.Map
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(out value.Map, err error) {
	f.out, f.err = out, err
	close(f.done)
}

// Async runs fn on its own goroutine and returns its future.
func Async(ctx context.Context, fn func(ctx context.Context) (value.Map, error)) *Future {
	f := newFuture()
	go func() {
		f.resolve(fn(ctx))
	}()
	return f
}

// Resolved returns a future that is already complete.
func Resolved(out value.Map, err error) *Future {
	f := newFuture()
	f.resolve(out, err)
	return f
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx is done. Giving up on ctx
// does not stop the underlying computation.
func (f *Future) Wait(ctx context.Context) (value.Map, error) {
	select {
	case <-f.done:
		return f.out, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
