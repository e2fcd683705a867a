package events

import (
	"frostmeter/internal/core/combiner"
	. "frostmeter/internal/core/domain"
)

// ReadingToUpdateEvents turns a combined reading into sensor updates. The
// combined value is split into import and export like a bidirectional meter.
func ReadingToUpdateEvents(reading combiner.Reading) []any {
	var importPower, exportPower float32
	if reading.Combined > 0 {
		importPower = reading.Combined
	} else if reading.Combined < 0 {
		exportPower = -reading.Combined
	}

	return []any{
		// meter
		PowerUpdate(SENSOR_ID_METER_POWER_FLOW, reading.Combined),
		PowerUpdate(SENSOR_ID_METER_IMPORT, importPower),
		PowerUpdate(SENSOR_ID_METER_EXPORT, exportPower),
		// sources
		PowerUpdate(SENSOR_ID_PRIMARY_POWER, reading.Primary),
		PowerUpdate(SENSOR_ID_SECONDARY_OFFSET, reading.Secondary),
	}
}
