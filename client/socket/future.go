package socket

import (
	"context"
	"encoding/json"
	"sync"
)

// Future is the pending result of a request that expects an acknowledgement.
type Future struct {
	done chan struct{}
	once sync.Once
	data json.RawMessage
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Rejected returns an already failed future.
func Rejected(err error) *Future {
	f := newFuture()
	f.resolve(nil, err)
	return f
}

// Resolved returns an already completed future.
func Resolved(data json.RawMessage) *Future {
	f := newFuture()
	f.resolve(data, nil)
	return f
}

func (f *Future) resolve(data json.RawMessage, err error) {
	f.once.Do(func() {
		f.data, f.err = data, err
		close(f.done)
	})
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the ack arrives, the socket closes or ctx is done.
func (f *Future) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitAs awaits f and decodes the ack into T.
func AwaitAs[T any](ctx context.Context, f *Future) (T, error) {
	var v T
	data, err := f.Await(ctx)
	if err != nil {
		return v, err
	}
	if len(data) == 0 {
		return v, ErrEmptyAck
	}
	if err = json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
