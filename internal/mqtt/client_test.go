package mqtt

import (
	"encoding/json"
	"testing"

	"frostmeter/internal/core/domain"
	"frostmeter/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := util.LoadTestConfig()
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestTopics(t *testing.T) {
	assert := assert.New(t)
	client := testClient()

	assert.Equal("frostmeter/bridge/state", client.BridgeStateTopic())
	assert.Equal("frostmeter/sensor/meter_power_flow/state", client.SensorStateTopic(domain.SENSOR_ID_METER_POWER_FLOW))
	assert.Equal("frostmeter/binary_sensor/x/state", client.BinarySensorStateTopic("x"))
	assert.Equal("homeassistant", client.DiscoveryPrefix())
}

func TestLastWillIsBridgeOffline(t *testing.T) {
	cfg := util.LoadTestConfig()
	opts := OptsFromConfig(&cfg)

	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, "frostmeter/bridge/state", opts.WillTopic)
	assert.Equal(t, []byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())
}

func TestMeterSensorDiscovery(t *testing.T) {
	client := testClient()
	meter := domain.MeterDevice("frostmeter")
	sensor := domain.MeterSensors(meter)[0]

	msg := GenericSensorToHADiscoveryMessage(client, sensor)
	assert.Equal(t, "frostmeter/sensor/meter_power_flow/state", msg.StateTopic)
	assert.Equal(t, "frostmeter/bridge/state", msg.AvTopic)
	assert.Equal(t, "W", msg.UnitOfMeasurement)
	assert.Equal(t, []string{meter.Id}, msg.Device.Id)
	assert.Empty(t, msg.PayloadOn)

	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"platform":"mqtt"`)
	assert.Contains(t, string(payload), `"device_class":"power"`)

	assert.Equal(t, "homeassistant/sensor/"+meter.Id+"/meter_power_flow/config",
		HADiscoverySensorTopic(client.DiscoveryPrefix(), sensor))
}

func TestBridgeSensorDiscovery(t *testing.T) {
	client := testClient()
	bridge := domain.BridgeSensors(domain.BridgeDevice("frostmeter"))[0]

	msg := GenericSensorToHADiscoveryMessage(client, bridge)
	assert.Equal(t, client.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal(t, MQTT_PAYLOAD_OFFLINE, msg.PayloadOff)
	assert.Contains(t, HADiscoverySensorTopic("homeassistant", bridge), "homeassistant/binary_sensor/")
}
