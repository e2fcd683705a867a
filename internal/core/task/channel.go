package task

import (
	"context"
	"errors"
	"sync"
)

// ErrConsumerGone is returned by Send once the receiving task has terminated.
var ErrConsumerGone = errors.New("channel consumer terminated")

// Channel is a bounded channel whose consumer can announce that it stopped
// receiving, so producers fail fast instead of blocking forever.
type Channel[T any] struct {
	ch   chan T
	gone chan struct{}
	once sync.Once
}

func NewChannel[T any](capacity int) *Channel[T] {
	return &Channel[T]{
		ch:   make(chan T, capacity),
		gone: make(chan struct{}),
	}
}

// Send blocks while the buffer is full. It fails with ErrConsumerGone after
// CloseConsumer, or with the context error.
func (c *Channel[T]) Send(ctx context.Context, value T) error {
	select {
	case <-c.gone:
		return ErrConsumerGone
	default:
	}
	select {
	case c.ch <- value:
		return nil
	case <-c.gone:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel[T]) Receive() <-chan T {
	return c.ch
}

// CloseConsumer marks the consumer as terminated. Safe to call more than once.
func (c *Channel[T]) CloseConsumer() {
	c.once.Do(func() { close(c.gone) })
}

func (c *Channel[T]) ConsumerGone() <-chan struct{} {
	return c.gone
}

func (c *Channel[T]) Len() int {
	return len(c.ch)
}

func (c *Channel[T]) Cap() int {
	return cap(c.ch)
}
