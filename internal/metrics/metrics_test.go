package metrics

import (
	"testing"
	"time"

	"frostmeter/pkg/sunspec_modbus"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := New()
	m.SampleReceived(SOURCE_PRIMARY)
	m.SampleReceived(SOURCE_PRIMARY)
	m.ReadFailed(SOURCE_SECONDARY)
	m.SetPower(SERIES_COMBINED, 1300)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.samples.WithLabelValues(SOURCE_PRIMARY)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readErrors.WithLabelValues(SOURCE_SECONDARY)))
	assert.Equal(t, 1300.0, testutil.ToFloat64(m.power.WithLabelValues(SERIES_COMBINED)))
}

func TestEmulatorInstrument(t *testing.T) {
	m := New()
	inst := m.EmulatorInstrument()
	inst.RecordRequest(sunspec_modbus.REQUEST_KIND_HOLDING_REGISTER, nil)
	inst.RecordRequest(sunspec_modbus.REQUEST_KIND_HOLDING_REGISTER, modbus.ErrIllegalDataAddress)
	inst.RecordRequest(sunspec_modbus.REQUEST_KIND_COILS, modbus.ErrIllegalFunction)
	inst.RecordUpdate(sunspec_modbus.PhaseCVA, sunspec_modbus.ErrAddressNotMapped)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(sunspec_modbus.REQUEST_KIND_HOLDING_REGISTER, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(sunspec_modbus.REQUEST_KIND_HOLDING_REGISTER, "exception")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(sunspec_modbus.REQUEST_KIND_COILS, "exception")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("phase_c_va", "dropped")))
}

func TestModbusInstrument(t *testing.T) {
	m := New()
	m.ModbusInstrument().RecordTime("ReadRegisters", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.modbusDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SampleReceived(SOURCE_PRIMARY)
		m.ReadFailed(SOURCE_PRIMARY)
		m.SetPower(SERIES_PRIMARY, 1)
	})
	assert.Nil(t, m.ModbusInstrument())
	assert.Nil(t, m.EmulatorInstrument())
}
