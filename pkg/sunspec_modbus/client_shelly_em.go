package sunspec_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	// Shelly (Pro) 3EM total active power, float32 in two input registers
	SHELLY_EM_TOTAL_ACTIVE_POWER_ADDR uint16 = 1013
)

var ErrEmptyPayload = errors.New("modbus response carried no register data")

// ShellyEMModbusReader reads the total active power of a Shelly 3EM.
// Shelly sends the low word of 32 bit values first.
type ShellyEMModbusReader struct {
	ModbusClient
	address string
	logger  *zap.Logger
}

func CreateShellyEMModbusReader(address string, unitId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (PowerMeterModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s", address),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("target", "shelly")).With(zap.String("address", address))

	// set unit id
	err = client.SetUnitId(unitId)
	if err != nil {
		return nil, err
	}
	return &ShellyEMModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: buildInstrumentation(logger, instrumentation),
		},
		address: address,
		logger:  logger,
	}, nil
}

func (reader *ShellyEMModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return fmt.Errorf("connect to %s: %w", reader.address, err)
	}
	return nil
}

func (reader *ShellyEMModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *ShellyEMModbusReader) GetTotalActivePower() (float32, error) {
	regs, err := reader.readRegisters(SHELLY_EM_TOTAL_ACTIVE_POWER_ADDR, 2, modbus.INPUT_REGISTER)
	if err != nil {
		return 0, err
	}
	if len(regs) < 2 {
		return 0, ErrEmptyPayload
	}
	return decodeFloat32(regs, true), nil
}
