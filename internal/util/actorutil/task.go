package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var ErrNilResult = errors.New("background task returned no result")

// SafeBackgroundTask evaluates fn with panic and timeout protection and
// delivers the result, or a recovered value, to an actor.
type SafeBackgroundTask[T any] struct {
	ctx       actor.Context
	fn        func() (*T, error)
	timeout   *time.Duration
	onError   func(error)
	recover   func(error) T
	onSuccess func(T)
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

func NewBackgroundTaskNoError[T any](ctx actor.Context, fn func() *T) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn: func() (*T, error) {
			return fn(), nil
		},
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = &timeout
	return t
}

func (t *SafeBackgroundTask[T]) OnError(fn func(error)) *SafeBackgroundTask[T] {
	t.onError = fn
	return t
}

// Recover maps a failure to a value that is delivered like a success.
func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	t.onSuccess = func(value T) {
		t.ctx.Send(pid, value)
	}
	t.Run()
}

// Run blocks until fn finished or the timeout elapsed.
func (t *SafeBackgroundTask[T]) Run() {
	bg := io.Map(io.Eval(t.fn), func(a *T) T {
		if a != nil {
			return *a
		}
		panic(ErrNilResult)
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)

	value := result.Value
	if result.Error != nil {
		switch {
		case t.recover != nil:
			value = t.recover(result.Error)
		case t.onError != nil:
			t.onError(result.Error)
			return
		default:
			return
		}
	}
	if t.onSuccess != nil {
		t.onSuccess(value)
	}
}
