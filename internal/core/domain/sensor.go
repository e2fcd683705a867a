package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"frostmeter/pkg/sunspec_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE      = "bridge"
	SENSOR_ID_METER_POWER_FLOW  = "meter_power_flow"
	SENSOR_ID_METER_IMPORT      = "meter_import_power"
	SENSOR_ID_METER_EXPORT      = "meter_export_power"
	SENSOR_ID_PRIMARY_POWER     = "primary_power"
	SENSOR_ID_SECONDARY_OFFSET  = "secondary_offset"
	STATE_CLASS_MEASUREMENT     = "measurement"
	DEVICE_CLASS_POWER          = "power"
	DEVICE_CLASS_CONNECTIVITY   = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC     = "diagnostic"
	SENSOR_TYPE_SENSOR          = "sensor"
	SENSOR_TYPE_BINARY          = "binary_sensor"
	UNIT_WATT                   = "W"
	METER_DEVICE_NAME_TEMPLATE  = "%s %s (virtual) %s"
	BRIDGE_DEVICE_ID_TEMPLATE   = "frostmeter_bridge_%s"
	METER_DEVICE_ID_TEMPLATE    = "frostmeter_meter_%s"
	BRIDGE_DEVICE_MANUFACTURER  = "frostmeter"
	BRIDGE_DEVICE_MODEL         = "Frostmeter"
	BRIDGE_DEVICE_NAME_TEMPLATE = "Frostmeter %s"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf(BRIDGE_DEVICE_ID_TEMPLATE, md5HashShort(baseTopic)),
		Manufacturer: BRIDGE_DEVICE_MANUFACTURER,
		Model:        BRIDGE_DEVICE_MODEL,
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf(BRIDGE_DEVICE_NAME_TEMPLATE, md5HashShort(baseTopic)),
	}
}

// MeterDevice describes the emulated smart meter. The base topic keeps ids
// unique when several bridges share a broker.
func MeterDevice(baseTopic string) Device {
	id := md5HashShort(baseTopic + sunspec_modbus.METER_SERIAL)
	return Device{
		Id:           fmt.Sprintf(METER_DEVICE_ID_TEMPLATE, id),
		Manufacturer: sunspec_modbus.METER_MANUFACTURER,
		Model:        sunspec_modbus.METER_MODEL,
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf(METER_DEVICE_NAME_TEMPLATE, sunspec_modbus.METER_MANUFACTURER, sunspec_modbus.METER_MODEL, id),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// MeterSensors lists the power sensors of the emulated meter. Only the first
// one carries the full device description.
func MeterSensors(meterDevice Device) []GenericSensor {
	sensors := []GenericSensor{
		powerSensor(meterDevice, SENSOR_ID_METER_POWER_FLOW, "Grid power flow", ""),
		powerSensor(meterDevice, SENSOR_ID_METER_IMPORT, "Grid import power", ""),
		powerSensor(meterDevice, SENSOR_ID_METER_EXPORT, "Grid export power", ""),
		powerSensor(meterDevice, SENSOR_ID_PRIMARY_POWER, "Primary meter power", ENTITY_CLASS_DIAGNOSTIC),
		powerSensor(meterDevice, SENSOR_ID_SECONDARY_OFFSET, "Secondary offset", ENTITY_CLASS_DIAGNOSTIC),
	}
	for i := range sensors {
		if i > 0 {
			sensors[i].Device = IdDevice(meterDevice)
		}
	}
	return sensors
}

func powerSensor(device Device, id, name, entityCategory string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: UNIT_WATT,
		EntityCategory:    entityCategory,
		UniqueId:          uniqueId(device.Id, id),
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	return md5Hash(text)[0:8]
}
