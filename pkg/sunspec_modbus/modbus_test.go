package sunspec_modbus

import (
	"math"
	"sync"
	"testing"
	"time"

	"frostmeter/internal/util"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startServer(t *testing.T, handler modbus.RequestHandler) string {
	t.Helper()
	url := "tcp://" + util.FreeTCPAddress(t)
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    5 * time.Second,
		MaxClients: 4,
	}, handler)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
	return url
}

func TestACMeterFloatReaderAgainstEmulator(t *testing.T) {
	require := require.New(t)
	logger := zaptest.NewLogger(t)

	emulator := NewMeterEmulator(logger, nil)
	url := startServer(t, emulator)

	var calls int
	var mu sync.Mutex
	reader, err := CreateACMeterFloatModbusReader(url, 1, time.Second, false, logger, &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})
	require.NoError(err)
	require.NoError(reader.Open())
	defer reader.Close()

	require.NoError(reader.Validate())

	info, err := reader.GetInfo()
	require.NoError(err)
	assert.Equal(t, "Fronius", info.Manufacturer)
	assert.Equal(t, "Smart Meter 63A", info.Model)
	assert.Equal(t, "00000001", info.Serial)
	assert.Equal(t, uint16(240), info.DeviceAddress)
	assert.Equal(t, uint16(213), info.ModelId)

	require.NoError(emulator.Apply(Sample{Quantity: TotalRealPower, Value: -1200}))
	require.NoError(emulator.Apply(Sample{Quantity: ReactivePower, Value: -1200}))
	require.NoError(emulator.Apply(Sample{Quantity: NetACCurrent, Value: -1200}))
	require.NoError(emulator.Apply(Sample{Quantity: Frequency, Value: 50}))

	pf, err := reader.GetPowerFlow()
	require.NoError(err)
	assert.Equal(t, -1200.0, pf.CurrentPowerFlowWatt)
	assert.Equal(t, 1200.0, pf.CurrentExportPowerWatt)
	assert.Zero(t, pf.CurrentImportPowerWatt)
	assert.Equal(t, -1200.0, pf.ReactivePowerVAR)
	assert.Equal(t, -1200.0, pf.NetCurrentAmp)
	assert.Equal(t, 50.0, pf.Frequency)

	mu.Lock()
	assert.Positive(t, calls)
	mu.Unlock()
}

func TestReadStringTakesByteCount(t *testing.T) {
	require := require.New(t)
	url := startServer(t, NewMeterEmulator(zaptest.NewLogger(t), nil))

	client, err := modbus.NewClient(&modbus.ClientConfiguration{URL: url, Timeout: time.Second})
	require.NoError(err)
	require.NoError(client.Open())
	defer client.Close()
	reader := ModbusClient{client: client}

	marker, err := reader.readString(SUNSPEC_MARKER_ADDR, sunspecMarkerByteLength)
	require.NoError(err)
	assert.Equal(t, "SunS", marker)

	model, err := reader.readString(SUNSPEC_COMMON_ADDR+commonModelOffset, commonStringByteLength)
	require.NoError(err)
	assert.Equal(t, "Smart Meter 63A", model)

	// two bytes cover a single register
	short, err := reader.readString(SUNSPEC_MARKER_ADDR, 2)
	require.NoError(err)
	assert.Equal(t, "Su", short)
}

func TestEmulatorInputRegistersMirrorHoldingTable(t *testing.T) {
	emulator := NewMeterEmulator(zaptest.NewLogger(t), nil)
	require.NoError(t, emulator.Apply(Sample{Quantity: TotalRealPower, Value: 1300}))
	addr, _ := TotalRealPower.Address()

	input, err := emulator.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: addr, Quantity: 2})
	require.NoError(t, err)
	holding, err := emulator.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{Addr: addr, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, holding, input)
}

func TestEmulatorServerRejectsWritesAndUnknownAddresses(t *testing.T) {
	emulator := NewMeterEmulator(zaptest.NewLogger(t), nil)
	url := startServer(t, emulator)

	client, err := modbus.NewClient(&modbus.ClientConfiguration{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, client.Open())
	defer client.Close()

	err = client.WriteRegister(40097, 1)
	assert.ErrorIs(t, err, modbus.ErrIllegalFunction)

	_, err = client.ReadRegisters(40197, 1, modbus.HOLDING_REGISTER)
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)

	_, err = client.ReadCoils(0, 1)
	assert.ErrorIs(t, err, modbus.ErrIllegalFunction)

	regs, err := client.ReadRegisters(0, 2, modbus.INPUT_REGISTER)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 0}, regs)
}

// shellyStub serves a float in two input registers, low word first.
type shellyStub struct {
	mu    sync.Mutex
	value float32
	fail  bool
}

func (s *shellyStub) set(value float32, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.fail = fail
}

func (s *shellyStub) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *shellyStub) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *shellyStub) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *shellyStub) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, modbus.ErrServerDeviceFailure
	}
	if req.Addr != SHELLY_EM_TOTAL_ACTIVE_POWER_ADDR || req.Quantity != 2 {
		return nil, modbus.ErrIllegalDataAddress
	}
	bits := math.Float32bits(s.value)
	return []uint16{uint16(bits), uint16(bits >> 16)}, nil
}

func TestShellyEMReaderDecodesLowWordFirst(t *testing.T) {
	stub := &shellyStub{}
	stub.set(1234.5, false)
	url := startServer(t, stub)

	reader, err := CreateShellyEMModbusReader(url[len("tcp://"):], 1, time.Second, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	require.NoError(t, reader.Open())
	defer reader.Close()

	value, err := reader.GetTotalActivePower()
	require.NoError(t, err)
	assert.Equal(t, float32(1234.5), value)

	stub.set(-812.25, false)
	value, err = reader.GetTotalActivePower()
	require.NoError(t, err)
	assert.Equal(t, float32(-812.25), value)

	stub.set(0, true)
	_, err = reader.GetTotalActivePower()
	assert.Error(t, err)
}

func TestShellyEMReaderConnectFailure(t *testing.T) {
	reader, err := CreateShellyEMModbusReader(util.FreeTCPAddress(t), 1, 200*time.Millisecond, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.Error(t, reader.Open())
}

func TestDecodeFloat32WordOrder(t *testing.T) {
	bits := math.Float32bits(3350)
	high, low := uint16(bits>>16), uint16(bits)
	assert.Equal(t, float32(3350), decodeFloat32([]uint16{low, high}, true))
	assert.Equal(t, float32(3350), decodeFloat32([]uint16{high, low}, false))
}
