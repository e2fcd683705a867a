package sunspec_modbus

import (
	"bytes"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

// readString reads size bytes (two per register) as text. NUL bytes are
// dropped, so both packed and one char per register layouts decode.
func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	raw, err := reader.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	return string(bytes.ReplaceAll(raw, []byte{0x00}, nil)), nil
}

func (reader ModbusClient) readRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	defer RecordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, regType)
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", reader.instrument)()
	return reader.client.ReadRegisters(addr, quantity, regType)
}

func (reader ModbusClient) readFloat32(addr uint16, regType modbus.RegType) (float32, error) {
	defer RecordTimer("ReadFloat32", reader.instrument)()
	return reader.client.ReadFloat32(addr, regType)
}

func (reader ModbusClient) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, regType)
}

// decodeFloat32 joins two registers into a float. lowFirst selects the word order.
func decodeFloat32(regs []uint16, lowFirst bool) float32 {
	if lowFirst {
		return math.Float32frombits(uint32(regs[0]) | uint32(regs[1])<<16)
	}
	return math.Float32frombits(uint32(regs[0])<<16 | uint32(regs[1]))
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus call", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func buildInstrumentation(logger *zap.Logger, instrumentation *ModbusInstrument) []ModbusInstrument {
	var inst []ModbusInstrument
	if logInst := traceLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return inst
}
