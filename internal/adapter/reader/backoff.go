package reader

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	CONNECT_ATTEMPTS  = 3
	SENSOR_ATTEMPTS   = 3
	SENSOR_RETRY_STEP = 200 * time.Millisecond
)

// ConnectBackOff waits 1s, 2s, 4s... between connection attempts.
func ConnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// SensorBackOff waits one more step after every failed attempt.
func SensorBackOff() backoff.BackOff {
	return &linearBackOff{step: SENSOR_RETRY_STEP}
}

type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// ZeroBackOff retries immediately. Used by tests.
func ZeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func limitAttempts(b backoff.BackOff, attempts int) backoff.BackOff {
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}
