package combiner

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"frostmeter/internal/core/task"
	"frostmeter/pkg/sunspec_modbus"

	"go.uber.org/zap"
)

// Quantities written for every combined value. Only the total real power is
// physically meaningful; the other two mirror it so that consumers reading
// them see a consistent meter.
var EmittedQuantities = []sunspec_modbus.Quantity{
	sunspec_modbus.TotalRealPower,
	sunspec_modbus.ReactivePower,
	sunspec_modbus.NetACCurrent,
}

// Reading is one emitted combination.
type Reading struct {
	Primary   float32
	Secondary float32
	Combined  float32
}

// Observer is notified after each emitted reading.
type Observer func(Reading)

// Combiner adds the latest primary power and secondary offset and forwards
// the sum to the register emulator once both sources reported at least once.
type Combiner struct {
	primary   atomic.Uint32
	secondary atomic.Uint32

	// guards the ready flags and the last emitted reading; never held
	// across a channel send
	mu           sync.Mutex
	hasPrimary   bool
	hasSecondary bool
	last         Reading
	emitted      bool

	// serializes emits, so an older combination is never written after a
	// newer one
	emitMu sync.Mutex

	out      *task.Channel[sunspec_modbus.Sample]
	observer Observer
	logger   *zap.Logger
}

func New(out *task.Channel[sunspec_modbus.Sample], logger *zap.Logger, observer Observer) *Combiner {
	return &Combiner{
		out:      out,
		observer: observer,
		logger:   logger.With(zap.String("component", "combiner")),
	}
}

// RunPrimary consumes primary power values until ctx is done or in is drained.
func (c *Combiner) RunPrimary(ctx context.Context, in *task.Channel[float32]) error {
	return c.receive(ctx, "primary", in, c.UpdatePrimary)
}

// RunSecondary consumes secondary offsets until ctx is done.
func (c *Combiner) RunSecondary(ctx context.Context, in *task.Channel[float32]) error {
	return c.receive(ctx, "secondary", in, c.UpdateSecondary)
}

func (c *Combiner) receive(ctx context.Context, source string, in *task.Channel[float32], update func(context.Context, float32)) error {
	defer in.CloseConsumer()
	c.logger.Info("combiner@receive started", zap.String("source", source))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("combiner@receive stopped", zap.String("source", source))
			return ctx.Err()
		case value, ok := <-in.Receive():
			if !ok {
				return nil
			}
			update(ctx, value)
		}
	}
}

func (c *Combiner) UpdatePrimary(ctx context.Context, value float32) {
	c.primary.Store(math.Float32bits(value))
	c.mu.Lock()
	c.hasPrimary = true
	ready := c.hasSecondary
	c.mu.Unlock()
	if ready {
		c.emit(ctx)
	}
}

func (c *Combiner) UpdateSecondary(ctx context.Context, value float32) {
	c.secondary.Store(math.Float32bits(value))
	c.mu.Lock()
	c.hasSecondary = true
	ready := c.hasPrimary
	c.mu.Unlock()
	if ready {
		c.emit(ctx)
	}
}

func (c *Combiner) emit(ctx context.Context) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	reading := Reading{
		Primary:   math.Float32frombits(c.primary.Load()),
		Secondary: math.Float32frombits(c.secondary.Load()),
	}
	reading.Combined = reading.Primary + reading.Secondary

	c.logger.Debug("combiner@emit",
		zap.Float32("primary", reading.Primary), zap.Float32("secondary", reading.Secondary), zap.Float32("combined", reading.Combined))

	for _, q := range EmittedQuantities {
		err := c.out.Send(ctx, sunspec_modbus.Sample{Quantity: q, Value: reading.Combined})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Warn("combiner@emit could not forward sample", zap.Stringer("quantity", q), zap.Error(err))
			}
			return
		}
	}
	c.mu.Lock()
	c.last = reading
	c.emitted = true
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(reading)
	}
}

// Snapshot returns the last emitted reading. ok is false until the first emit.
func (c *Combiner) Snapshot() (reading Reading, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.emitted
}

// Ready reports which sources delivered at least one value.
func (c *Combiner) Ready() (primary, secondary bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasPrimary, c.hasSecondary
}
