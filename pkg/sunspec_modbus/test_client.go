package sunspec_modbus

import (
	"errors"
	"sync"
)

var ErrTestReadFailure = errors.New("test reader failure")

// TestPowerMeterModbusReader is a scripted power meter. Steps are consumed in
// order and the last one repeats once the script is exhausted.
type TestPowerMeterModbusReader struct {
	mu        sync.Mutex
	script    []float32
	errs      []error
	step      int
	OpenErr   error
	opens     int
	closes    int
	reads     int
	connected bool
}

func CreateTestPowerMeterModbusReader(values ...float32) *TestPowerMeterModbusReader {
	reader := &TestPowerMeterModbusReader{}
	for _, v := range values {
		reader.ThenValue(v)
	}
	return reader
}

func (reader *TestPowerMeterModbusReader) ThenValue(value float32) *TestPowerMeterModbusReader {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.script = append(reader.script, value)
	reader.errs = append(reader.errs, nil)
	return reader
}

func (reader *TestPowerMeterModbusReader) ThenFail(times int) *TestPowerMeterModbusReader {
	return reader.thenError(times, ErrTestReadFailure)
}

// ThenEmpty answers like a meter whose response carried no registers.
func (reader *TestPowerMeterModbusReader) ThenEmpty(times int) *TestPowerMeterModbusReader {
	return reader.thenError(times, ErrEmptyPayload)
}

func (reader *TestPowerMeterModbusReader) thenError(times int, err error) *TestPowerMeterModbusReader {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	for i := 0; i < times; i++ {
		reader.script = append(reader.script, 0)
		reader.errs = append(reader.errs, err)
	}
	return reader
}

func (reader *TestPowerMeterModbusReader) Open() error {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.opens++
	if reader.OpenErr != nil {
		return reader.OpenErr
	}
	reader.connected = true
	return nil
}

func (reader *TestPowerMeterModbusReader) Close() error {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.closes++
	reader.connected = false
	return nil
}

func (reader *TestPowerMeterModbusReader) GetTotalActivePower() (float32, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.reads++
	if !reader.connected {
		return 0, errors.New("test reader not connected")
	}
	if len(reader.script) == 0 {
		return 0, ErrEmptyPayload
	}
	i := reader.step
	if i >= len(reader.script) {
		i = len(reader.script) - 1
	} else {
		reader.step++
	}
	if reader.errs[i] != nil {
		return 0, reader.errs[i]
	}
	return reader.script[i], nil
}

// Stats returns the number of Open, Close and read calls.
func (reader *TestPowerMeterModbusReader) Stats() (opens, closes, reads int) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	return reader.opens, reader.closes, reader.reads
}
