package domain

// Device groups sensors in Home Assistant.
type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

// Via marks d as reached through parent.
func (d Device) Via(parent Device) Device {
	d.ViaDevice = parent.Id
	return d
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string // sensor, binary_sensor
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement
	DeviceClass       string // power, connectivity
	EntityCategory    string // diagnostic or empty
	EnabledByDefault  *bool
	Icon              string
}

func (s GenericSensor) IsBinary() bool {
	return s.SensorType == SENSOR_TYPE_BINARY
}
