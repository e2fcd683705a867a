package actorutil

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type taskResult struct {
	Value int
	Err   error
}

type taskProbe struct {
	fn func(ctx actor.Context) *SafeBackgroundTask[taskResult]
}

func (p *taskProbe) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case string:
		if msg == "run" {
			p.fn(ctx).PipeTo(ctx.Sender())
		}
	}
}

func runProbe(t *testing.T, fn func(ctx actor.Context) *SafeBackgroundTask[taskResult]) (any, error) {
	t.Helper()
	as := actor.NewActorSystem()
	defer as.Shutdown()
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return &taskProbe{fn: fn} }))
	return as.Root.RequestFuture(pid, "run", 2*time.Second).Result()
}

func TestBackgroundTaskPipesResult(t *testing.T) {
	res, err := runProbe(t, func(ctx actor.Context) *SafeBackgroundTask[taskResult] {
		return NewBackgroundTaskNoError(ctx, func() *taskResult { return &taskResult{Value: 42} })
	})
	require.NoError(t, err)
	assert.Equal(t, taskResult{Value: 42}, res)
}

func TestBackgroundTaskRecoversErrors(t *testing.T) {
	boom := errors.New("boom")
	res, err := runProbe(t, func(ctx actor.Context) *SafeBackgroundTask[taskResult] {
		return NewBackgroundTask(ctx, func() (*taskResult, error) { return nil, boom }).
			Recover(func(err error) taskResult { return taskResult{Err: err} })
	})
	require.NoError(t, err)
	assert.ErrorIs(t, res.(taskResult).Err, boom)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, SlogLevel(zap.DebugLevel))
	assert.Equal(t, slog.LevelWarn, SlogLevel(zap.WarnLevel))
	assert.Equal(t, slog.LevelError, SlogLevel(zap.DPanicLevel))
}
