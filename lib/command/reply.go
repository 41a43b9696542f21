package command

import "context"

// Ack is the payload of replies that only signal completion.
type Ack = struct{}

// Result is the value delivered on a Reply.
type Result[T any] struct {
	Value T
	Err   error
}

// Reply is a one-shot reply channel. It has a buffer of one so the responder never blocks.
type Reply[T any] chan Result[T]

// NewReply creates a reply channel ready to be attached to a command.
func NewReply[T any]() Reply[T] {
	return make(Reply[T], 1)
}

// Send delivers the result. Only the first call has an effect, later calls and calls on a nil
// reply are dropped.
func (r Reply[T]) Send(value T, err error) {
	if r == nil {
		return
	}
	select {
	case r <- Result[T]{Value: value, Err: err}:
	default:
	}
}

// Wait blocks until a result arrives or the context is done.
func (r Reply[T]) Wait(ctx context.Context) (T, error) {
	select {
	case res := <-r:
		return res.Value, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
