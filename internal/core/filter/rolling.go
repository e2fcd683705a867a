package filter

const DEFAULT_WINDOW_SIZE = 10

// RollingWindow averages the last N values. Until N values were added the
// average is 0, so a partially filled window never leaks a skewed mean.
// Not safe for concurrent use.
type RollingWindow struct {
	buffer []float32
	index  int
	count  int
	sum    float64
}

func NewRollingWindow(size int) *RollingWindow {
	if size <= 0 {
		size = DEFAULT_WINDOW_SIZE
	}
	return &RollingWindow{buffer: make([]float32, size)}
}

// Add inserts value, evicting the oldest one once the window is full, and
// returns the current average.
func (w *RollingWindow) Add(value float32) float32 {
	if w.count == len(w.buffer) {
		w.sum -= float64(w.buffer[w.index])
	} else {
		w.count++
	}
	w.buffer[w.index] = value
	w.sum += float64(value)
	w.index = (w.index + 1) % len(w.buffer)
	return w.Average()
}

func (w *RollingWindow) Average() float32 {
	if w.count != len(w.buffer) {
		return 0
	}
	return float32(w.sum / float64(w.count))
}

func (w *RollingWindow) Full() bool {
	return w.count == len(w.buffer)
}
