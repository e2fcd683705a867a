package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeterSensors(t *testing.T) {
	device := MeterDevice("frostmeter")
	sensors := MeterSensors(device)

	assert.Len(t, sensors, 5)
	assert.Equal(t, device, sensors[0].Device)
	assert.Equal(t, "Fronius", sensors[0].Device.Manufacturer)
	for _, s := range sensors[1:] {
		assert.Equal(t, IdDevice(device), s.Device)
	}
	ids := map[string]bool{}
	for _, s := range sensors {
		assert.Equal(t, SENSOR_TYPE_SENSOR, s.SensorType)
		assert.Equal(t, UNIT_WATT, s.UnitOfMeasurement)
		assert.Contains(t, s.UniqueId, device.Id)
		ids[s.UniqueId] = true
	}
	assert.Len(t, ids, len(sensors))
}

func TestDeviceIdsDependOnBaseTopic(t *testing.T) {
	assert.NotEqual(t, BridgeDevice("a").Id, BridgeDevice("b").Id)
	assert.NotEqual(t, MeterDevice("a").Id, MeterDevice("b").Id)
	assert.Equal(t, MeterDevice("a"), MeterDevice("a"))
	assert.Len(t, md5HashShort("frostmeter"), 8)
}

func TestBridgeSensorIsBinary(t *testing.T) {
	bridge := BridgeDevice("frostmeter")
	meter := MeterDevice("frostmeter").Via(bridge)

	assert.Equal(t, bridge.Id, meter.ViaDevice)
	assert.True(t, BridgeSensors(bridge)[0].IsBinary())
	assert.False(t, MeterSensors(meter)[0].IsBinary())
}

func TestPowerUpdate(t *testing.T) {
	ev := PowerUpdate(SENSOR_ID_PRIMARY_POWER, -12.5)
	assert.Equal(t, SENSOR_ID_PRIMARY_POWER, ev.SensorId())
	assert.Equal(t, -12.5, ev.Value)
	assert.Equal(t, uint(2), ev.Decimals)
}
