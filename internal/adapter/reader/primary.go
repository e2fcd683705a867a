package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frostmeter/internal/core/task"
	"frostmeter/internal/metrics"
	"frostmeter/pkg/sunspec_modbus"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var ErrTooManyFailures = errors.New("too many consecutive read failures")

type PrimaryOptions struct {
	Interval             time.Duration
	MaxConsecutiveErrors uint32
	Clock                clock.Clock
	NewBackOff           func() backoff.BackOff
	Metrics              *metrics.Metrics
}

// PrimaryReader polls total active power from the primary meter and
// forwards every successful reading.
type PrimaryReader struct {
	meter      sunspec_modbus.PowerMeterModbusReader
	interval   time.Duration
	maxErrors  uint32
	clock      clock.Clock
	newBackOff func() backoff.BackOff
	metrics    *metrics.Metrics
	logger     *zap.Logger
	connected  bool
}

func NewPrimaryReader(meter sunspec_modbus.PowerMeterModbusReader, opts PrimaryOptions, logger *zap.Logger) *PrimaryReader {
	r := &PrimaryReader{
		meter:      meter,
		interval:   opts.Interval,
		maxErrors:  opts.MaxConsecutiveErrors,
		clock:      opts.Clock,
		newBackOff: opts.NewBackOff,
		metrics:    opts.Metrics,
		logger:     logger.With(zap.String("component", "primary")),
	}
	if r.interval <= 0 {
		r.interval = 500 * time.Millisecond
	}
	if r.maxErrors == 0 {
		r.maxErrors = 10
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.newBackOff == nil {
		r.newBackOff = ConnectBackOff
	}
	return r
}

// Run polls until ctx is cancelled, the consumer is gone or the meter failed
// MaxConsecutiveErrors times in a row.
func (r *PrimaryReader) Run(ctx context.Context, out *task.Channel[float32]) error {
	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()
	defer r.disconnect()

	var failures uint32
	for {
		value, err := r.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			r.metrics.ReadFailed(metrics.SOURCE_PRIMARY)
			r.logger.Warn("primary@read failed", zap.Uint32("failures", failures), zap.Error(err))
			if failures >= r.maxErrors {
				return fmt.Errorf("%w: %d in a row, last: %w", ErrTooManyFailures, failures, err)
			}
		} else {
			failures = 0
			r.metrics.SampleReceived(metrics.SOURCE_PRIMARY)
			r.metrics.SetPower(metrics.SERIES_PRIMARY, value)
			r.logger.Debug("primary@read", zap.Float32("watts", value))
			if err := send(ctx, out, value); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *PrimaryReader) poll(ctx context.Context) (float32, error) {
	if !r.connected {
		if err := r.connect(ctx); err != nil {
			return 0, err
		}
	}
	value, err := r.meter.GetTotalActivePower()
	if err != nil {
		r.disconnect()
		return 0, err
	}
	return value, nil
}

func (r *PrimaryReader) connect(ctx context.Context) error {
	b := backoff.WithContext(limitAttempts(r.newBackOff(), CONNECT_ATTEMPTS), ctx)
	err := backoff.RetryNotify(r.meter.Open, b, func(err error, wait time.Duration) {
		r.logger.Info("primary@connect retry", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("connect after %d attempts: %w", CONNECT_ATTEMPTS, err)
	}
	r.connected = true
	r.logger.Info("primary@connected")
	return nil
}

func (r *PrimaryReader) disconnect() {
	if !r.connected {
		return
	}
	r.connected = false
	if err := r.meter.Close(); err != nil {
		r.logger.Debug("primary@close", zap.Error(err))
	}
}

// send reports a cancellation rather than ErrConsumerGone while the whole
// pipeline is shutting down.
func send(ctx context.Context, out *task.Channel[float32], value float32) error {
	err := out.Send(ctx, value)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
