package reader

import (
	"context"
	"fmt"
	"time"

	"frostmeter/internal/core/filter"
	"frostmeter/internal/core/task"
	"frostmeter/internal/metrics"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// SensorSource returns the numeric state of a sensor.
type SensorSource interface {
	SensorValue(ctx context.Context, entityID string) (float32, error)
}

type SecondaryOptions struct {
	ImportSensor string
	ExportSensor string
	Smooth       bool
	Interval     time.Duration
	Clock        clock.Clock
	NewBackOff   func() backoff.BackOff
	Metrics      *metrics.Metrics
}

// SecondaryReader publishes import minus export of two sensors as an offset.
// Failed cycles publish 0.
type SecondaryReader struct {
	source       SensorSource
	importSensor string
	exportSensor string
	window       *filter.RollingWindow
	interval     time.Duration
	clock        clock.Clock
	newBackOff   func() backoff.BackOff
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func NewSecondaryReader(source SensorSource, opts SecondaryOptions, logger *zap.Logger) *SecondaryReader {
	r := &SecondaryReader{
		source:       source,
		importSensor: opts.ImportSensor,
		exportSensor: opts.ExportSensor,
		interval:     opts.Interval,
		clock:        opts.Clock,
		newBackOff:   opts.NewBackOff,
		metrics:      opts.Metrics,
		logger:       logger.With(zap.String("component", "secondary")),
	}
	if opts.Smooth {
		r.window = filter.NewRollingWindow(filter.DEFAULT_WINDOW_SIZE)
	}
	if r.interval <= 0 {
		r.interval = time.Second
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.newBackOff == nil {
		r.newBackOff = SensorBackOff
	}
	return r
}

// Run sends a single zero offset and returns when no sensor is configured.
// Otherwise it polls until ctx is cancelled or the consumer is gone.
func (r *SecondaryReader) Run(ctx context.Context, out *task.Channel[float32]) error {
	r.logger.Info("secondary@start",
		zap.String("import", sensorName(r.importSensor)),
		zap.String("export", sensorName(r.exportSensor)),
		zap.Bool("smooth", r.window != nil))

	if r.importSensor == "" && r.exportSensor == "" {
		r.logger.Info("secondary@no sensors configured, using zero offset")
		return send(ctx, out, 0)
	}

	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()

	for {
		offset, err := r.readWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.metrics.ReadFailed(metrics.SOURCE_SECONDARY)
			r.logger.Warn("secondary@read failed, using zero offset", zap.Error(err))
			offset = 0
		} else {
			r.metrics.SampleReceived(metrics.SOURCE_SECONDARY)
		}
		r.metrics.SetPower(metrics.SERIES_SECONDARY, offset)
		if err := send(ctx, out, offset); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *SecondaryReader) readWithRetry(ctx context.Context) (float32, error) {
	b := backoff.WithContext(limitAttempts(r.newBackOff(), SENSOR_ATTEMPTS), ctx)
	offset, err := backoff.RetryNotifyWithData(func() (float32, error) {
		return r.readOffset(ctx)
	}, b, func(err error, wait time.Duration) {
		r.logger.Info("secondary@retry", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return 0, fmt.Errorf("all %d attempts failed: %w", SENSOR_ATTEMPTS, err)
	}
	return offset, nil
}

func (r *SecondaryReader) readOffset(ctx context.Context) (float32, error) {
	imported, err := r.sensorValue(ctx, r.importSensor)
	if err != nil {
		return 0, err
	}
	exported, err := r.sensorValue(ctx, r.exportSensor)
	if err != nil {
		return 0, err
	}
	raw := imported - exported
	offset := raw
	if r.window != nil {
		offset = r.window.Add(raw)
	}
	r.logger.Debug("secondary@offset",
		zap.Float32("import", imported),
		zap.Float32("export", exported),
		zap.Float32("raw", raw),
		zap.Float32("offset", offset))
	return offset, nil
}

func (r *SecondaryReader) sensorValue(ctx context.Context, entityID string) (float32, error) {
	if entityID == "" {
		return 0, nil
	}
	return r.source.SensorValue(ctx, entityID)
}

func sensorName(entityID string) string {
	if entityID == "" {
		return "none"
	}
	return entityID
}
