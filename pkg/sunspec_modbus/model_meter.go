package sunspec_modbus

import "fmt"

// Quantity is one measurement exposed by the emulated SunSpec model 213 meter.
type Quantity int

const (
	NetACCurrent Quantity = iota
	AveragePhaseVoltage
	AverageLLVoltage
	PhaseACurrent
	PhaseBCurrent
	PhaseCCurrent
	PhaseAVoltage
	PhaseBVoltage
	PhaseCVoltage
	PhaseAWatts
	PhaseBWatts
	PhaseCWatts
	PhaseABVoltage
	PhaseBCVoltage
	PhaseCAVoltage
	Frequency
	TotalRealPower
	ApparentPower
	PhaseAVA
	PhaseBVA
	PhaseCVA
	ReactivePower
	PhaseAVAR
	PhaseBVAR
	PhaseCVAR
	PowerFactorTotal
	PhaseAPF
	PhaseBPF
	PhaseCPF
)

// Sample is a single quantity update flowing towards the register table.
type Sample struct {
	Quantity Quantity
	Value    float32
}

const (
	SUNSPEC_MARKER_ADDR      uint16 = 40000
	SUNSPEC_COMMON_ADDR      uint16 = 40002
	SUNSPEC_METER_ADDR       uint16 = 40069
	SUNSPEC_METER_DATA_ADDR  uint16 = 40071
	SUNSPEC_END_BLOCK_ADDR   uint16 = 40195
	SUNSPEC_METER_LENGTH     uint16 = 124
	SUNSPEC_COMMON_LENGTH    uint16 = 65
	SUNSPEC_END_BLOCK_ID     uint16 = 0xFFFF
	METER_DEVICE_ADDRESS     uint16 = 240
	METER_MANUFACTURER       string = "Fronius"
	METER_MODEL              string = "Smart Meter 63A"
	METER_SERIAL             string = "00000001"
	meterManufacturerAddr    uint16 = 40004
	meterModelAddr           uint16 = 40020
	meterSerialAddr          uint16 = 40052
	meterDeviceAddressAddr   uint16 = 40068
	meterEndOfModelDataAddr  uint16 = 40194
	meterIdentificationFirst uint16 = 40000
	meterIdentificationLast  uint16 = 40070
)

var quantityNames = map[Quantity]string{
	NetACCurrent:        "net_ac_current",
	AveragePhaseVoltage: "average_phase_voltage",
	AverageLLVoltage:    "average_ll_voltage",
	PhaseACurrent:       "phase_a_current",
	PhaseBCurrent:       "phase_b_current",
	PhaseCCurrent:       "phase_c_current",
	PhaseAVoltage:       "phase_a_voltage",
	PhaseBVoltage:       "phase_b_voltage",
	PhaseCVoltage:       "phase_c_voltage",
	PhaseAWatts:         "phase_a_watts",
	PhaseBWatts:         "phase_b_watts",
	PhaseCWatts:         "phase_c_watts",
	PhaseABVoltage:      "phase_ab_voltage",
	PhaseBCVoltage:      "phase_bc_voltage",
	PhaseCAVoltage:      "phase_ca_voltage",
	Frequency:           "frequency",
	TotalRealPower:      "total_real_power",
	ApparentPower:       "apparent_power",
	PhaseAVA:            "phase_a_va",
	PhaseBVA:            "phase_b_va",
	PhaseCVA:            "phase_c_va",
	ReactivePower:       "reactive_power",
	PhaseAVAR:           "phase_a_var",
	PhaseBVAR:           "phase_b_var",
	PhaseCVAR:           "phase_c_var",
	PowerFactorTotal:    "power_factor_total",
	PhaseAPF:            "phase_a_pf",
	PhaseBPF:            "phase_b_pf",
	PhaseCPF:            "phase_c_pf",
}

// Base register of each quantity. Every value spans two registers, high word first.
var quantityAddresses = map[Quantity]uint16{
	NetACCurrent:        40071,
	PhaseACurrent:       40073,
	PhaseBCurrent:       40075,
	PhaseCCurrent:       40077,
	AveragePhaseVoltage: 40079,
	PhaseAVoltage:       40081,
	PhaseBVoltage:       40083,
	PhaseCVoltage:       40085,
	AverageLLVoltage:    40087,
	PhaseABVoltage:      40089,
	PhaseBCVoltage:      40091,
	PhaseCAVoltage:      40093,
	Frequency:           40095,
	TotalRealPower:      40097,
	PhaseAWatts:         40099,
	PhaseBWatts:         40101,
	PhaseCWatts:         40103,
	ApparentPower:       40105,
	PhaseAVA:            40107,
	PhaseBVA:            40109,
	// Published meter maps place phase C VA at 4011, most likely a typo of 40111.
	// It is kept as documented, so writes to it never land in the table.
	PhaseCVA:         4011,
	ReactivePower:    40113,
	PhaseAVAR:        40115,
	PhaseBVAR:        40117,
	PhaseCVAR:        40119,
	PowerFactorTotal: 40121,
	PhaseAPF:         40123,
	PhaseBPF:         40125,
	PhaseCPF:         40127,
}

func (q Quantity) String() string {
	if name, ok := quantityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quantity(%d)", int(q))
}

// Address returns the base register of the quantity.
func (q Quantity) Address() (uint16, bool) {
	addr, ok := quantityAddresses[q]
	return addr, ok
}

// Quantities lists every known quantity in register order of declaration.
func Quantities() []Quantity {
	qs := make([]Quantity, 0, len(quantityAddresses))
	for q := NetACCurrent; q <= PhaseCPF; q++ {
		qs = append(qs, q)
	}
	return qs
}

// identificationBlock builds the fixed register values announcing a Fronius
// smart meter: the SunSpec marker, the common model and the model 213 header.
// Strings are stored one character per register.
func identificationBlock() map[uint16]uint16 {
	regs := make(map[uint16]uint16, 101)
	for addr := meterIdentificationFirst; addr <= meterIdentificationLast; addr++ {
		regs[addr] = 0
	}
	regs[SUNSPEC_MARKER_ADDR] = 0x5375
	regs[SUNSPEC_MARKER_ADDR+1] = 0x6e53
	regs[SUNSPEC_COMMON_ADDR] = 1
	regs[SUNSPEC_COMMON_ADDR+1] = SUNSPEC_COMMON_LENGTH
	putChars(regs, meterManufacturerAddr, METER_MANUFACTURER)
	putChars(regs, meterModelAddr, METER_MODEL)
	putChars(regs, meterSerialAddr, METER_SERIAL)
	regs[meterDeviceAddressAddr] = METER_DEVICE_ADDRESS
	regs[SUNSPEC_METER_ADDR] = 213
	regs[SUNSPEC_METER_ADDR+1] = SUNSPEC_METER_LENGTH
	return regs
}

// measurementBlock zeroes the whole model 213 data range and closes the model
// chain with the end block.
func measurementBlock() map[uint16]uint16 {
	regs := make(map[uint16]uint16, 128)
	for addr := SUNSPEC_METER_DATA_ADDR; addr <= meterEndOfModelDataAddr; addr++ {
		regs[addr] = 0
	}
	regs[SUNSPEC_END_BLOCK_ADDR] = SUNSPEC_END_BLOCK_ID
	regs[SUNSPEC_END_BLOCK_ADDR+1] = 0
	return regs
}

// compatibilityBlock answers the probes some inverters send before the SunSpec survey.
func compatibilityBlock() map[uint16]uint16 {
	return map[uint16]uint16{
		0:     1,
		1:     0,
		11:    0,
		12:    0,
		768:   0,
		1706:  0,
		50000: 0,
		50001: 0,
	}
}

func putChars(regs map[uint16]uint16, addr uint16, text string) {
	for i := 0; i < len(text); i++ {
		regs[addr+uint16(i)] = uint16(text[i])
	}
}
