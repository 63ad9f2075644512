package service

import (
	"context"
	"sync"
	"time"
)

// inFlightCall is one upstream fetch that concurrent callers for the same key share.
type inFlightCall[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// requestCoalescer collapses concurrent misses for the same key into one upstream call.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall[T]
	timeout  time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightCall[T]),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight call for key or starts fn. shared reports whether
// the caller joined a call started by someone else.
// fn runs detached from the caller's cancellation, bounded by the coalescer timeout,
// so one caller giving up does not fail the others.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(context.Context) (T, error)) (val T, shared bool, err error) {
	rc.mu.Lock()
	call, shared := rc.inFlight[key]
	if !shared {
		call = &inFlightCall[T]{done: make(chan struct{})}
		rc.inFlight[key] = call
		go rc.run(ctx, key, call, fn)
	}
	rc.mu.Unlock()

	select {
	case <-call.done:
		return call.val, shared, call.err
	case <-ctx.Done():
		var zero T
		return zero, shared, ctx.Err()
	}
}

func (rc *requestCoalescer[T]) run(ctx context.Context, key string, call *inFlightCall[T], fn func(context.Context) (T, error)) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()

	call.val, call.err = fn(fctx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(call.done)
}
