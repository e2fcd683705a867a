package sunspec_modbus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	SUNSPEC_WK_COMMON          = 1
	SUNSPEC_WK_METER_FLOAT_MIN = 211
	SUNSPEC_WK_METER_FLOAT_MAX = 213
	sunspecMaxSurveyedBlocks   = 10
	meterFloatNetCurrentOffset = 2
	meterFloatPhaseAVoltOffset = 12
	meterFloatFrequencyOffset  = 26
	meterFloatRealPowerOffset  = 28
	meterFloatReactPowerOffset = 44
	commonManufacturerOffset   = 2
	commonModelOffset          = 18
	commonVersionOffset        = 42
	commonSerialOffset         = 50
	commonDeviceAddressOffset  = 66
	sunspecMarkerByteLength    = 4
	commonStringByteLength     = 32
	commonVersionByteLength    = 16
)

type acMeterFloatModbusBlocks struct {
	common  uint16
	acMeter uint16
	modelId uint16
}

func (blk *acMeterFloatModbusBlocks) AllBlocksDefined() bool {
	return blk.common > 0 && blk.acMeter > 0
}

// ACMeterFloatModbusReader reads SunSpec float meters (models 211 to 213),
// the layout served by MeterEmulator.
type ACMeterFloatModbusReader struct {
	ModbusClient
	blocks        acMeterFloatModbusBlocks
	ignoreFronius bool
}

func CreateACMeterFloatModbusReader(url string, acMeterAddress uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (ACMeterModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("target", "acMeter")).With(zap.Uint8("acMeter", acMeterAddress))

	// set ac meter address
	err = client.SetUnitId(acMeterAddress)
	if err != nil {
		return nil, err
	}
	return &ACMeterFloatModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: buildInstrumentation(logger, instrumentation),
		},
		ignoreFronius: ignoreFronius,
	}, nil
}

func (reader *ACMeterFloatModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	if err := reader.survey(); err != nil {
		return err
	}
	return nil
}

func (reader *ACMeterFloatModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *ACMeterFloatModbusReader) Validate() error {
	str, err := reader.readString(SUNSPEC_MARKER_ADDR, sunspecMarkerByteLength)
	if err != nil {
		return err
	}
	if str != "SunS" {
		return errors.New("could not find a SunSpec smart meter")
	}
	str, err = reader.readString(reader.blocks.common+commonManufacturerOffset, commonStringByteLength)
	if err != nil {
		return err
	}
	if !reader.ignoreFronius && str != METER_MANUFACTURER {
		return errors.New("could not find a Fronius smart meter")
	}
	return nil
}

func (reader *ACMeterFloatModbusReader) GetInfo() (*ACMeterInfo, error) {
	manufacturer, err := reader.readString(reader.blocks.common+commonManufacturerOffset, commonStringByteLength)
	if err != nil {
		return nil, err
	}
	model, err := reader.readString(reader.blocks.common+commonModelOffset, commonStringByteLength)
	if err != nil {
		return nil, err
	}
	version, err := reader.readString(reader.blocks.common+commonVersionOffset, commonVersionByteLength)
	if err != nil {
		return nil, err
	}
	serial, err := reader.readString(reader.blocks.common+commonSerialOffset, commonStringByteLength)
	if err != nil {
		return nil, err
	}
	deviceAddress, err := reader.readRegister(reader.blocks.common+commonDeviceAddressOffset, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	return &ACMeterInfo{
		Manufacturer:  manufacturer,
		Model:         model,
		Version:       version,
		Serial:        serial,
		DeviceAddress: deviceAddress,
		ModelId:       reader.blocks.modelId,
	}, nil
}

func (reader *ACMeterFloatModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	totalRealPower, err := reader.readFloat32(reader.blocks.acMeter+meterFloatRealPowerOffset, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return float64(totalRealPower), nil
}

func (reader *ACMeterFloatModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	totalRealPower, err := reader.GetCurrentPowerFlowWatt()
	if err != nil {
		return nil, err
	}
	reactivePower, err := reader.readFloat32(reader.blocks.acMeter+meterFloatReactPowerOffset, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	netCurrent, err := reader.readFloat32(reader.blocks.acMeter+meterFloatNetCurrentOffset, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	freq, err := reader.readFloat32(reader.blocks.acMeter+meterFloatFrequencyOffset, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	phaseAVoltage, err := reader.readFloat32(reader.blocks.acMeter+meterFloatPhaseAVoltOffset, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	var importPower float64 = 0
	var exportPower float64 = 0
	if totalRealPower < 0 {
		exportPower = math.Abs(totalRealPower)
	} else {
		importPower = totalRealPower
	}

	return &ACMeterPowerFlow{
		CurrentPowerFlowWatt:   totalRealPower,
		CurrentImportPowerWatt: importPower,
		CurrentExportPowerWatt: exportPower,
		ReactivePowerVAR:       float64(reactivePower),
		NetCurrentAmp:          float64(netCurrent),
		Frequency:              float64(freq),
		PhaseAVoltage:          float64(phaseAVoltage),
	}, nil
}

func (reader *ACMeterFloatModbusReader) survey() error {

	// check SunSpec
	str, err := reader.readString(SUNSPEC_MARKER_ADDR, sunspecMarkerByteLength)
	if err != nil {
		return err
	}
	if str != "SunS" {
		return errors.New("could not find a SunSpec smart meter")
	}

	// survey blocks
	blocks := acMeterFloatModbusBlocks{}
	baseAddr := SUNSPEC_COMMON_ADDR
	for n := 0; n <= sunspecMaxSurveyedBlocks; n++ {
		block, err := reader.surveyModbusBlock(baseAddr)
		if err != nil {
			return fmt.Errorf("survey block at %d: %w", baseAddr, err)
		}
		if block.isEndBlock() {
			break
		}
		// identify block
		switch {
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id >= SUNSPEC_WK_METER_FLOAT_MIN && block.id <= SUNSPEC_WK_METER_FLOAT_MAX:
			blocks.acMeter = block.baseAddr
			blocks.modelId = block.id
		}
		if blocks.AllBlocksDefined() {
			break
		}
		baseAddr = baseAddr + block.length + 2
	}
	if blocks.AllBlocksDefined() {
		reader.blocks = blocks
		return nil
	}
	return errors.New("could not find all required sunspec blocks (common, float ac_meter)")
}

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_END_BLOCK_ID
}

func (reader ModbusClient) surveyModbusBlock(baseAddr uint16) (*modbusBlock, error) {
	header, err := reader.readRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       header[0],
		length:   header[1],
		baseAddr: baseAddr,
	}, nil
}
