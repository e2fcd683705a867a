package homeassistant

import (
	"context"
	"testing"

	"frostmeter/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, url, token string) *Client {
	return NewClient(config.HomeAssistantConfig{URL: url, Token: token, TimeoutMillis: 1000}, zaptest.NewLogger(t))
}

func TestClientGetState(t *testing.T) {
	ha := NewTestServer("secret")
	defer ha.Close()
	ha.SetState("sensor.pv_import", "512.5")

	client := newTestClient(t, ha.URL+"/", "secret")
	state, err := client.GetState(context.Background(), "sensor.pv_import")
	require.NoError(t, err)
	assert.Equal(t, "sensor.pv_import", state.EntityID)
	assert.Equal(t, "512.5", state.State)
	assert.False(t, state.LastUpdated.IsZero())

	value, err := client.SensorValue(context.Background(), "sensor.pv_import")
	require.NoError(t, err)
	assert.Equal(t, float32(512.5), value)
}

func TestClientNonNumericState(t *testing.T) {
	ha := NewTestServer("secret")
	defer ha.Close()
	ha.SetState("sensor.pv_import", "unavailable")

	client := newTestClient(t, ha.URL, "secret")
	_, err := client.SensorValue(context.Background(), "sensor.pv_import")
	assert.ErrorContains(t, err, "not numeric")
}

func TestClientErrors(t *testing.T) {
	ha := NewTestServer("secret")
	defer ha.Close()
	ha.SetState("sensor.a", "1")
	ha.FailNext("sensor.a", 1)

	client := newTestClient(t, ha.URL, "secret")
	_, err := client.GetState(context.Background(), "sensor.a")
	assert.ErrorContains(t, err, "500")

	_, err = client.GetState(context.Background(), "sensor.missing")
	assert.ErrorContains(t, err, "404")

	_, err = newTestClient(t, ha.URL, "wrong").GetState(context.Background(), "sensor.a")
	assert.ErrorContains(t, err, "401")

	_, err = newTestClient(t, "", "secret").GetState(context.Background(), "sensor.a")
	assert.ErrorIs(t, err, ErrNoConnection)

	// unauthorized requests are rejected before reaching the entity
	assert.Equal(t, 1, ha.Requests("sensor.a"))
	assert.Equal(t, 1, ha.Requests("sensor.missing"))
}
