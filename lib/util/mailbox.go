// Package util provides the bounded Multi-Producer Single-Consumer (MPSC) mailbox the roc actors
// receive their commands on.
//
// Features and Guarantees:
//
//   - Bounded: a full mailbox blocks producers until the consumer catches up (backpressure)
//   - Thread-Safe writes: any number of goroutines may call Push() concurrently
//   - Single Consumer: one goroutine ranges over Recv()
//   - FIFO per producer: values pushed by one goroutine are received in push order
//   - Lossless Close: after Close() no new values are accepted, values already accepted are
//     still delivered before Recv() is closed
package util

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Push once the mailbox has been closed.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is a bounded multi-producer single-consumer queue.
type Mailbox[T any] struct {
	ch chan T

	// mu guards closed. Producers hold the read lock only while registering in senders,
	// never while blocked on ch.
	mu      sync.RWMutex
	closed  bool
	senders sync.WaitGroup
	once    sync.Once
}

// NewMailbox creates a mailbox that buffers up to size values. A size below one is treated as one.
func NewMailbox[T any](size int) *Mailbox[T] {
	if size < 1 {
		size = 1
	}
	return &Mailbox[T]{ch: make(chan T, size)}
}

// Push adds a value to the mailbox, blocking while it is full.
// Returns ErrMailboxClosed if the mailbox is closed, or the context error if ctx ends first.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Mailbox[T]) Push(ctx context.Context, value T) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrMailboxClosed
	}
	m.senders.Add(1)
	m.mu.RUnlock()
	defer m.senders.Done()

	select {
	case m.ch <- value:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the channel to consume values from. It is closed after Close() once all
// accepted values have been received.
func (m *Mailbox[T]) Recv() <-chan T {
	return m.ch
}

// Close stops accepting values. It does not block and may be called multiple times.
func (m *Mailbox[T]) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		// producers blocked on a full channel finish once the consumer drains it
		go func() {
			m.senders.Wait()
			close(m.ch)
		}()
	})
}

// IsClosed returns whether Close() was called.
func (m *Mailbox[T]) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Len returns the number of values waiting to be received.
func (m *Mailbox[T]) Len() int {
	return len(m.ch)
}
