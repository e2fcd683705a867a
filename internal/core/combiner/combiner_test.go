package combiner

import (
	"context"
	"sync"
	"testing"
	"time"

	"frostmeter/internal/core/task"
	"frostmeter/pkg/sunspec_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func drain(out *task.Channel[sunspec_modbus.Sample]) []sunspec_modbus.Sample {
	var samples []sunspec_modbus.Sample
	for {
		select {
		case s := <-out.Receive():
			samples = append(samples, s)
		default:
			return samples
		}
	}
}

func combined(value float32) []sunspec_modbus.Sample {
	return []sunspec_modbus.Sample{
		{Quantity: sunspec_modbus.TotalRealPower, Value: value},
		{Quantity: sunspec_modbus.ReactivePower, Value: value},
		{Quantity: sunspec_modbus.NetACCurrent, Value: value},
	}
}

func TestCombinerWaitsForBothSources(t *testing.T) {
	ctx := context.Background()
	out := task.NewChannel[sunspec_modbus.Sample](32)
	c := New(out, zaptest.NewLogger(t), nil)

	c.UpdatePrimary(ctx, 1000)
	c.UpdatePrimary(ctx, 1100)
	assert.Empty(t, drain(out))
	_, ok := c.Snapshot()
	assert.False(t, ok)

	c.UpdateSecondary(ctx, 300)
	assert.Equal(t, combined(1400), drain(out))

	reading, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, Reading{Primary: 1100, Secondary: 300, Combined: 1400}, reading)
}

func TestCombinerUsesLatestValues(t *testing.T) {
	ctx := context.Background()
	out := task.NewChannel[sunspec_modbus.Sample](32)
	c := New(out, zaptest.NewLogger(t), nil)

	c.UpdateSecondary(ctx, -700)
	c.UpdatePrimary(ctx, -500)
	assert.Equal(t, combined(-1200), drain(out))

	c.UpdateSecondary(ctx, 0)
	assert.Equal(t, combined(-500), drain(out))
}

func TestCombinerObserver(t *testing.T) {
	ctx := context.Background()
	out := task.NewChannel[sunspec_modbus.Sample](32)
	var seen []Reading
	c := New(out, zaptest.NewLogger(t), func(r Reading) { seen = append(seen, r) })

	c.UpdatePrimary(ctx, 2000)
	c.UpdateSecondary(ctx, 200)
	c.UpdatePrimary(ctx, 2100)
	assert.Equal(t, []Reading{
		{Primary: 2000, Secondary: 200, Combined: 2200},
		{Primary: 2100, Secondary: 200, Combined: 2300},
	}, seen)
}

func TestCombinerSurvivesConsumerGone(t *testing.T) {
	ctx := context.Background()
	out := task.NewChannel[sunspec_modbus.Sample](32)
	c := New(out, zaptest.NewLogger(t), nil)
	out.CloseConsumer()

	c.UpdatePrimary(ctx, 1)
	c.UpdateSecondary(ctx, 2)
	c.UpdatePrimary(ctx, 3)
	_, ok := c.Snapshot()
	assert.False(t, ok)
	p, s := c.Ready()
	assert.True(t, p)
	assert.True(t, s)
}

func TestCombinerReceiveLoops(t *testing.T) {
	out := task.NewChannel[sunspec_modbus.Sample](64)
	primary := task.NewChannel[float32](32)
	secondary := task.NewChannel[float32](32)
	c := New(out, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = c.RunPrimary(ctx, primary) }()
	go func() { defer wg.Done(); errs[1] = c.RunSecondary(ctx, secondary) }()

	require.NoError(t, primary.Send(ctx, 1000))
	require.NoError(t, secondary.Send(ctx, 300))

	assert.Eventually(t, func() bool {
		r, ok := c.Snapshot()
		return ok && r.Combined == 1300
	}, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.ErrorIs(t, errs[1], context.Canceled)

	// stopped loops release their producers
	assert.ErrorIs(t, primary.Send(context.Background(), 1), task.ErrConsumerGone)
	assert.ErrorIs(t, secondary.Send(context.Background(), 1), task.ErrConsumerGone)
}

func TestCombinerSnapshotDoesNotWaitOnBlockedEmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := task.NewChannel[sunspec_modbus.Sample](len(EmittedQuantities))
	c := New(out, zaptest.NewLogger(t), nil)

	c.UpdatePrimary(ctx, 1000)
	c.UpdateSecondary(ctx, 300)
	require.Equal(t, out.Cap(), out.Len())

	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		c.UpdateSecondary(ctx, 400)
	}()

	snapshot := make(chan Reading)
	go func() {
		reading, _ := c.Snapshot()
		primary, secondary := c.Ready()
		assert.True(t, primary)
		assert.True(t, secondary)
		snapshot <- reading
	}()
	select {
	case reading := <-snapshot:
		assert.Equal(t, float32(1300), reading.Combined)
	case <-time.After(time.Second):
		t.Fatal("snapshot waited on the emit")
	}

	select {
	case <-blocked:
		t.Fatal("emit should wait for room in the update channel")
	default:
	}

	var first []sunspec_modbus.Sample
	for range EmittedQuantities {
		first = append(first, <-out.Receive())
	}
	assert.Equal(t, combined(1300), first)
	assert.Eventually(t, func() bool { return out.Len() == len(EmittedQuantities) }, time.Second, 5*time.Millisecond)
	<-blocked
	assert.Equal(t, combined(1700), drain(out))
	reading, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, float32(1700), reading.Combined)
}
