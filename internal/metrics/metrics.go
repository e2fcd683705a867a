package metrics

import (
	"errors"
	"time"

	"frostmeter/pkg/sunspec_modbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	SOURCE_PRIMARY   = "primary"
	SOURCE_SECONDARY = "secondary"

	SERIES_PRIMARY   = "primary"
	SERIES_SECONDARY = "secondary"
	SERIES_COMBINED  = "combined"
)

// Metrics holds the bridge collectors on a private registry. All methods are
// no-ops on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	samples        *prometheus.CounterVec
	readErrors     *prometheus.CounterVec
	requests       *prometheus.CounterVec
	updates        *prometheus.CounterVec
	power          *prometheus.GaugeVec
	modbusDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostmeter",
			Name:      "samples_total",
			Help:      "Values delivered by each source.",
		}, []string{"source"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostmeter",
			Name:      "read_errors_total",
			Help:      "Failed reads per source.",
		}, []string{"source"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostmeter",
			Name:      "modbus_requests_total",
			Help:      "Modbus requests served by the emulated meter.",
		}, []string{"kind", "result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostmeter",
			Name:      "register_updates_total",
			Help:      "Quantity writes into the register table.",
		}, []string{"quantity", "result"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frostmeter",
			Name:      "power_watts",
			Help:      "Last emitted power values.",
		}, []string{"series"}),
		modbusDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frostmeter",
			Name:      "modbus_client_seconds",
			Help:      "Duration of upstream Modbus calls.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"fn"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.samples, m.readErrors, m.requests, m.updates, m.power, m.modbusDuration,
	)
	return m
}

func (m *Metrics) SampleReceived(source string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(source).Inc()
}

func (m *Metrics) ReadFailed(source string) {
	if m == nil {
		return
	}
	m.readErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) SetPower(series string, watts float32) {
	if m == nil {
		return
	}
	m.power.WithLabelValues(series).Set(float64(watts))
}

// ModbusInstrument feeds upstream Modbus call durations into the histogram.
func (m *Metrics) ModbusInstrument() *sunspec_modbus.ModbusInstrument {
	if m == nil {
		return nil
	}
	return &sunspec_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			m.modbusDuration.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}

// EmulatorInstrument counts served requests and register updates.
func (m *Metrics) EmulatorInstrument() *sunspec_modbus.EmulatorInstrument {
	if m == nil {
		return nil
	}
	return &sunspec_modbus.EmulatorInstrument{
		RecordRequest: func(kind string, err error) {
			m.requests.WithLabelValues(kind, requestResult(err)).Inc()
		},
		RecordUpdate: func(q sunspec_modbus.Quantity, err error) {
			result := "ok"
			if err != nil {
				result = "dropped"
			}
			m.updates.WithLabelValues(q.String(), result).Inc()
		},
	}
}

func requestResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case sunspec_modbus.IsRequestError(err):
		return "exception"
	case errors.Is(err, sunspec_modbus.ErrAddressNotMapped):
		return "unmapped"
	default:
		return "error"
	}
}
