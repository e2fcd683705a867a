package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"frostmeter/internal/core/combiner"
	"frostmeter/internal/core/domain"
	"frostmeter/internal/metrics"
	"frostmeter/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMaster struct {
	healthy   bool
	reading   combiner.Reading
	available bool
}

func (s *stubMaster) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: s.healthy})
	case domain.GetMeterReadingRequest:
		ctx.Respond(domain.GetMeterReadingResponse{Reading: s.reading, Available: s.available})
	}
}

func newTestHandler(t *testing.T, master *stubMaster, m *metrics.Metrics) http.Handler {
	t.Helper()
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return master }))

	cfg := util.LoadTestConfig()
	s := &Server{port: cfg.Port, rootContext: as.Root, masterActor: pid}
	if m != nil {
		s.registry = m.Registry
	}
	return s.RegisterRoutes()
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheckHandler(t *testing.T) {
	rec := get(newTestHandler(t, &stubMaster{healthy: true}, nil), "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	rec = get(newTestHandler(t, &stubMaster{healthy: false}, nil), "/healthcheck")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMeterHandler(t *testing.T) {
	handler := newTestHandler(t, &stubMaster{
		reading:   combiner.Reading{Primary: 1000, Secondary: 300, Combined: 1300},
		available: true,
	}, nil)

	rec := get(handler, "/meter")
	require.Equal(t, http.StatusOK, rec.Code)
	var body meterReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, meterReading{Available: true, PrimaryWatts: 1000, SecondaryWatts: 300, CombinedWatts: 1300}, body)

	rec = get(newTestHandler(t, &stubMaster{}, nil), "/meter")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)
}

func TestMetricsHandler(t *testing.T) {
	m := metrics.New()
	m.SetPower(metrics.SERIES_COMBINED, 1300)

	rec := get(newTestHandler(t, &stubMaster{}, m), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `frostmeter_power_watts{series="combined"} 1300`))

	rec = get(newTestHandler(t, &stubMaster{}, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
