package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"frostmeter/internal/adapter/reader"
	"frostmeter/internal/config"
	"frostmeter/internal/core/combiner"
	"frostmeter/internal/core/task"
	"frostmeter/internal/homeassistant"
	"frostmeter/internal/metrics"
	"frostmeter/pkg/sunspec_modbus"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	SOURCE_CHANNEL_CAPACITY = 32
	SAMPLE_CHANNEL_CAPACITY = 128

	TASK_PRIMARY            = "primary"
	TASK_SECONDARY          = "secondary"
	TASK_COMBINER_PRIMARY   = "combiner.primary"
	TASK_COMBINER_SECONDARY = "combiner.secondary"
	TASK_EMULATOR           = "emulator"
)

var ErrAlreadyStarted = errors.New("coordinator already started")

// Options override collaborators. Zero values use the production defaults.
type Options struct {
	Clock          clock.Clock
	Metrics        *metrics.Metrics
	ConnectBackOff func() backoff.BackOff
	SensorBackOff  func() backoff.BackOff
	// Meter replaces the Shelly reader built from the primary config
	Meter sunspec_modbus.PowerMeterModbusReader
	// Sensors replaces the Home Assistant client
	Sensors   reader.SensorSource
	OnOutcome func(task.Outcome)
	OnReading combiner.Observer
}

// Coordinator wires readers, combiner and register emulator together and
// runs each of them as a task.
type Coordinator struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	emulator  *sunspec_modbus.MeterEmulator
	combiner  *combiner.Combiner
	primary   *reader.PrimaryReader
	secondary *reader.SecondaryReader

	primaryCh   *task.Channel[float32]
	secondaryCh *task.Channel[float32]
	samples     *task.Channel[sunspec_modbus.Sample]

	outcomes  chan task.Outcome
	onOutcome func(task.Outcome)
	onReading combiner.Observer

	mu        sync.Mutex
	handles   []*task.Handle
	cancel    context.CancelFunc
	watchDone chan struct{}
}

func New(cfg *config.Config, logger *zap.Logger, opts Options) (*Coordinator, error) {
	c := &Coordinator{
		logger:      logger.With(zap.String("component", "coordinator")),
		metrics:     opts.Metrics,
		primaryCh:   task.NewChannel[float32](SOURCE_CHANNEL_CAPACITY),
		secondaryCh: task.NewChannel[float32](SOURCE_CHANNEL_CAPACITY),
		samples:     task.NewChannel[sunspec_modbus.Sample](SAMPLE_CHANNEL_CAPACITY),
		onOutcome:   opts.OnOutcome,
		onReading:   opts.OnReading,
	}

	meter := opts.Meter
	if meter == nil {
		var err error
		meter, err = sunspec_modbus.CreateShellyEMModbusReader(cfg.Primary.Address, cfg.Primary.UnitId,
			cfg.Primary.Timeout(), logger, opts.Metrics.ModbusInstrument())
		if err != nil {
			return nil, fmt.Errorf("create primary reader: %w", err)
		}
	}
	sensors := opts.Sensors
	if sensors == nil {
		sensors = homeassistant.NewClient(cfg.HomeAssistant, logger)
	}

	c.emulator = sunspec_modbus.NewMeterEmulator(logger, opts.Metrics.EmulatorInstrument())
	c.combiner = combiner.New(c.samples, logger, c.observeReading)
	c.primary = reader.NewPrimaryReader(meter, reader.PrimaryOptions{
		Interval:             cfg.Primary.PollInterval(),
		MaxConsecutiveErrors: cfg.Primary.MaxConsecutiveErrors,
		Clock:                opts.Clock,
		NewBackOff:           opts.ConnectBackOff,
		Metrics:              opts.Metrics,
	}, logger)
	c.secondary = reader.NewSecondaryReader(sensors, reader.SecondaryOptions{
		ImportSensor: cfg.HomeAssistant.ImportSensor,
		ExportSensor: cfg.HomeAssistant.ExportSensor,
		Smooth:       cfg.HomeAssistant.Smooth,
		Interval:     cfg.HomeAssistant.PollInterval(),
		Clock:        opts.Clock,
		NewBackOff:   opts.SensorBackOff,
		Metrics:      opts.Metrics,
	}, logger)
	return c, nil
}

func (c *Coordinator) Emulator() *sunspec_modbus.MeterEmulator {
	return c.emulator
}

func (c *Coordinator) Combiner() *combiner.Combiner {
	return c.combiner
}

// Start spawns all tasks. Consumers are started before producers.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	specs := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{TASK_EMULATOR, func(ctx context.Context) error {
			defer c.samples.CloseConsumer()
			return c.emulator.Run(ctx, c.samples)
		}},
		{TASK_COMBINER_PRIMARY, func(ctx context.Context) error { return c.combiner.RunPrimary(ctx, c.primaryCh) }},
		{TASK_COMBINER_SECONDARY, func(ctx context.Context) error { return c.combiner.RunSecondary(ctx, c.secondaryCh) }},
		{TASK_PRIMARY, func(ctx context.Context) error { return c.primary.Run(ctx, c.primaryCh) }},
		{TASK_SECONDARY, func(ctx context.Context) error { return c.secondary.Run(ctx, c.secondaryCh) }},
	}
	// buffered for every task so a finished task never waits on the watcher
	c.outcomes = make(chan task.Outcome, len(specs))
	for _, s := range specs {
		c.handles = append(c.handles, task.Spawn(runCtx, s.name, c.outcomes, s.fn))
	}
	c.watchDone = make(chan struct{})
	go c.watch(len(specs))

	c.logger.Info("coordinator@started", zap.Int("tasks", len(specs)))
	return nil
}

// Stop cancels all tasks and waits until they and the outcome watcher ended.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, handles, watchDone := c.cancel, c.handles, c.watchDone
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	for _, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for task %s: %w", h.Name(), err)
		}
	}
	select {
	case <-watchDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.logger.Info("coordinator@stopped")
	return nil
}

// Handles returns the spawned task handles in start order.
func (c *Coordinator) Handles() []*task.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*task.Handle(nil), c.handles...)
}

func (c *Coordinator) watch(tasks int) {
	defer close(c.watchDone)
	for i := 0; i < tasks; i++ {
		outcome := <-c.outcomes
		if outcome.IsFault() {
			c.logger.Error("coordinator@task failed", zap.String("task", outcome.Task), zap.Error(outcome.Err))
		} else {
			c.logger.Info("coordinator@task ended", zap.String("task", outcome.Task), zap.NamedError("reason", outcome.Err))
		}
		if c.onOutcome != nil {
			c.onOutcome(outcome)
		}
	}
}

func (c *Coordinator) observeReading(reading combiner.Reading) {
	c.metrics.SetPower(metrics.SERIES_COMBINED, reading.Combined)
	if c.onReading != nil {
		c.onReading(reading)
	}
}

// IsFatal reports whether an outcome must stop the process: a task lost its
// consumer, or the combiner or register update loop failed.
func IsFatal(outcome task.Outcome) bool {
	if !outcome.IsFault() {
		return false
	}
	if errors.Is(outcome.Err, task.ErrConsumerGone) {
		return true
	}
	switch outcome.Task {
	case TASK_COMBINER_PRIMARY, TASK_COMBINER_SECONDARY, TASK_EMULATOR:
		return true
	}
	return false
}

// NewMeterServer builds the Modbus TCP server answering requests from the
// register emulator.
func NewMeterServer(cfg config.MeterConfig, handler modbus.RequestHandler) (*modbus.ModbusServer, error) {
	maxClients := cfg.MaxClients
	if maxClients == 0 {
		maxClients = 5
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        cfg.Listen,
		Timeout:    timeout,
		MaxClients: maxClients,
	}, handler)
	if err != nil {
		return nil, fmt.Errorf("create meter server on %s: %w", cfg.Listen, err)
	}
	return server, nil
}
