package server

import (
	"net/http"
	"time"

	"frostmeter/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type meterReading struct {
	Available      bool    `json:"available"`
	PrimaryWatts   float32 `json:"primary_watts"`
	SecondaryWatts float32 `json:"secondary_watts"`
	CombinedWatts  float32 `json:"combined_watts"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/meter", s.MeterHandler)
	if s.registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// MeterHandler returns the last combined reading. 503 until the first one.
func (s *Server) MeterHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetMeterReadingRequest{}, 2*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetMeterReadingResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	body := meterReading{
		Available:      response.Available,
		PrimaryWatts:   response.Reading.Primary,
		SecondaryWatts: response.Reading.Secondary,
		CombinedWatts:  response.Reading.Combined,
	}
	if !response.Available {
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusOK, body)
}
