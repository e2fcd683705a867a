package sunspec_modbus

type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
	// Modbus device address announced in the common block
	DeviceAddress uint16
	// SunSpec model id of the meter block (211, 212, 213)
	ModelId uint16
}

type ACMeterPowerFlow struct {
	// Current AC power flow. Positive = import. Negative = export
	CurrentPowerFlowWatt float64
	// Current import AC power
	CurrentImportPowerWatt float64
	// Current export AC power
	CurrentExportPowerWatt float64
	// Reactive power
	ReactivePowerVAR float64
	// Net AC current
	NetCurrentAmp float64
	// Grid frequency
	Frequency float64
	// First grid phase voltage
	PhaseAVoltage float64
}

// ACMeterModbusReader reads a SunSpec float smart meter.
type ACMeterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*ACMeterInfo, error)
	GetCurrentPowerFlowWatt() (float64, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
}

// PowerMeterModbusReader reads the total active power of a non SunSpec energy meter.
type PowerMeterModbusReader interface {
	Open() error
	Close() error
	GetTotalActivePower() (float32, error)
}
