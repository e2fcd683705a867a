package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"frostmeter/internal/config"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

var ErrNoConnection = errors.New("no Home Assistant connection configured")

// State is the subset of /api/states/<entity_id> the bridge reads.
type State struct {
	EntityID     string    `json:"entity_id"`
	State        string    `json:"state"`
	LastChanged  time.Time `json:"last_changed"`
	LastReported time.Time `json:"last_reported"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Client talks to the Home Assistant REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(cfg config.HomeAssistantConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "homeassistant")),
	}
}

// GetState fetches the current state of an entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	if c.baseURL == "" {
		return nil, ErrNoConnection
	}
	uri := fmt.Sprintf("%s/api/states/%s", c.baseURL, url.PathEscape(entityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("request %s: unexpected status %d: %s", entityID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entityID, err)
	}
	c.logger.Debug("homeassistant@state", zap.String("entity", state.EntityID), zap.String("state", state.State))
	return &state, nil
}

// SensorValue fetches an entity and parses its state as a number.
func (c *Client) SensorValue(ctx context.Context, entityID string) (float32, error) {
	state, err := c.GetState(ctx, entityID)
	if err != nil {
		return 0, err
	}
	value, err := cast.ToFloat32E(strings.TrimSpace(state.State))
	if err != nil {
		return 0, fmt.Errorf("sensor %s value %q is not numeric: %w", entityID, state.State, err)
	}
	return value, nil
}
