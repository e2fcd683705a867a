package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type OutcomeKind int

const (
	// OutcomeShutdown is a normal return or a cancellation.
	OutcomeShutdown OutcomeKind = iota
	// OutcomeFault is a task ending on its own with an error.
	OutcomeFault
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeShutdown:
		return "shutdown"
	case OutcomeFault:
		return "fault"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is how a task ended.
type Outcome struct {
	Task string
	Kind OutcomeKind
	Err  error
}

func (o Outcome) IsFault() bool {
	return o.Kind == OutcomeFault
}

// Handle controls a task started with Spawn.
type Handle struct {
	name    string
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	outcome Outcome
}

// Spawn runs fn in its own goroutine under a cancellable child of ctx. When fn
// returns, its outcome is recorded on the handle and, if outcomes is not nil,
// sent there. A panic in fn is turned into a fault outcome.
func Spawn(ctx context.Context, name string, outcomes chan<- Outcome, fn func(ctx context.Context) error) *Handle {
	taskCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		outcome := run(taskCtx, name, fn)
		cancel()

		h.mu.Lock()
		h.outcome = outcome
		h.mu.Unlock()
		close(h.done)

		if outcomes != nil {
			outcomes <- outcome
		}
	}()
	return h
}

func run(ctx context.Context, name string, fn func(ctx context.Context) error) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Task: name, Kind: OutcomeFault, Err: fmt.Errorf("task %s panicked: %v", name, r)}
		}
	}()
	err := fn(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return Outcome{Task: name, Kind: OutcomeShutdown, Err: err}
	}
	return Outcome{Task: name, Kind: OutcomeFault, Err: err}
}

func (h *Handle) Name() string {
	return h.name
}

// Stop cancels the task without waiting for it.
func (h *Handle) Stop() {
	h.cancel()
}

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task returned or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome is only meaningful after Done is closed.
func (h *Handle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}
