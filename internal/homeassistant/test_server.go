package homeassistant

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// TestServer is an in-memory Home Assistant exposing /api/states/:entity_id.
type TestServer struct {
	*httptest.Server
	token string

	mu       sync.Mutex
	states   map[string]string
	failing  map[string]int
	requests map[string]int
}

func NewTestServer(token string) *TestServer {
	s := &TestServer{
		token:    token,
		states:   map[string]string{},
		failing:  map[string]int{},
		requests: map[string]int{},
	}
	e := echo.New()
	e.HideBanner = true
	e.GET("/api/states/:entity_id", s.handleState)
	s.Server = httptest.NewServer(e)
	return s
}

// SetState publishes a raw state string for an entity.
func (s *TestServer) SetState(entityID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[entityID] = state
}

// FailNext makes the next n requests for the entity answer 500.
// A negative n fails forever.
func (s *TestServer) FailNext(entityID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[entityID] = n
}

func (s *TestServer) Requests(entityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[entityID]
}

func (s *TestServer) handleState(c echo.Context) error {
	if c.Request().Header.Get("Authorization") != "Bearer "+s.token {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	}
	id := c.Param("entity_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[id]++
	if n := s.failing[id]; n != 0 {
		if n > 0 {
			s.failing[id] = n - 1
		}
		return c.String(http.StatusInternalServerError, "boom")
	}
	state, ok := s.states[id]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Entity not found."})
	}
	now := time.Now().UTC()
	return c.JSON(http.StatusOK, State{
		EntityID:     id,
		State:        state,
		LastChanged:  now,
		LastReported: now,
		LastUpdated:  now,
	})
}
