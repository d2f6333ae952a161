package jailbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Promise is a one-shot asynchronous result, channel-backed rather than
// callback-backed. It is fulfilled at most once; a second fulfillment is
// a no-op.
type Promise struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	val  any
	err  error
}

// NewPromisePair builds a Promise together with its linked resolve and
// reject Callables. Both are themselves marshalable: the codec treats them
// like any other local callable, so passing the pair across the wire (as
// the remote stub factory does in its "promise" envelope field) just works.
//
// resolve and reject need no back-reference to each other: both close over
// the same *Promise, so whichever fires first wins and the other becomes
// a no-op via sync.Once.
func NewPromisePair() (p *Promise, resolve, reject Callable) {
	p = &Promise{done: make(chan struct{})}
	resolve = NewCallable(func(args []any) (any, error) {
		var v any
		if len(args) > 0 {
			v = args[0]
		}
		p.fulfill(v, nil)
		return nil, nil
	})
	reject = NewCallable(func(args []any) (any, error) {
		var err error
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", args[0])
			}
		} else {
			err = errors.New("rejected")
		}
		p.fulfill(nil, err)
		return nil, nil
	})
	return p, resolve, reject
}

func (p *Promise) fulfill(val any, err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.val, p.err = val, err
		p.mu.Unlock()
		close(p.done)
	})
}

// Wait blocks until the promise is fulfilled or ctx is cancelled. There is
// no built-in timeout on the promise itself: a fulfillment that never
// arrives leaks this goroutine's wait until the caller's context ends.
func (p *Promise) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.val, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fulfilled reports whether the promise has already settled, without
// blocking.
func (p *Promise) Fulfilled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
