package relay

import (
	"context"
	"errors"
)

// Every actor owns a bounded mailbox; a full mailbox backpressures senders.
const mailboxCap = 8

// ErrTerminated is returned when sending to an actor whose processing loop
// has already exited. Callers treat it as "target gone", never as fatal.
var ErrTerminated = errors.New("relay: actor terminated")

// send enqueues msg into an actor's mailbox. It blocks while the mailbox is
// full and fails once the owning loop has exited or ctx ends.
func send[T any](ctx context.Context, mailbox chan<- T, done <-chan struct{}, msg T) error {
	select {
	case mailbox <- msg:
		return nil
	case <-done:
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for a one-shot reply. The reply channel must have capacity 1 so
// the owning loop never blocks on it.
func await[T any](ctx context.Context, reply <-chan T, done <-chan struct{}) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		return zero, ErrTerminated
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
