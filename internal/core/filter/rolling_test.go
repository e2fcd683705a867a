package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingWindowColdStart(t *testing.T) {
	w := NewRollingWindow(DEFAULT_WINDOW_SIZE)
	assert.Zero(t, w.Average())

	for i := 1; i < 10; i++ {
		assert.Zero(t, w.Add(float32(i)), "value %d", i)
		assert.False(t, w.Full())
	}
	assert.Equal(t, float32(5.5), w.Add(10))
	assert.True(t, w.Full())
	assert.Equal(t, float32(5.5), w.Average())
}

func TestRollingWindowEvictsOldest(t *testing.T) {
	w := NewRollingWindow(DEFAULT_WINDOW_SIZE)
	for i := 1; i <= 10; i++ {
		w.Add(float32(i))
	}
	// 1 leaves, 11 enters
	assert.Equal(t, float32(6.5), w.Add(11))
	// 2 leaves, 100 enters
	assert.InDelta(t, 16.3, w.Add(100), 1e-4)
}

func TestRollingWindowConstantInput(t *testing.T) {
	w := NewRollingWindow(DEFAULT_WINDOW_SIZE)
	var avg float32
	for i := 0; i < 25; i++ {
		avg = w.Add(-300)
	}
	assert.Equal(t, float32(-300), avg)
}

func TestRollingWindowDefaultSize(t *testing.T) {
	w := NewRollingWindow(0)
	for i := 0; i < 9; i++ {
		w.Add(1)
	}
	assert.False(t, w.Full())
	assert.Equal(t, float32(1), w.Add(1))
}
