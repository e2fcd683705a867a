package sunspec_modbus

import (
	"context"
	"errors"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	REQUEST_KIND_COILS            = "coils"
	REQUEST_KIND_DISCRETE_INPUTS  = "discrete_inputs"
	REQUEST_KIND_HOLDING_REGISTER = "holding_registers"
	REQUEST_KIND_INPUT_REGISTER   = "input_registers"
)

// EmulatorInstrument observes the emulator. Both hooks are optional.
type EmulatorInstrument struct {
	RecordRequest func(kind string, err error)
	RecordUpdate  func(quantity Quantity, err error)
}

// UpdateSource is the receiving side of the sample channel feeding the emulator.
type UpdateSource interface {
	Receive() <-chan Sample
}

// MeterEmulator presents a register table as a Fronius smart meter.
// It implements modbus.RequestHandler and serves register reads only.
type MeterEmulator struct {
	table      *RegisterTable
	logger     *zap.Logger
	instrument []EmulatorInstrument
}

var _ modbus.RequestHandler = (*MeterEmulator)(nil)

func NewMeterEmulator(logger *zap.Logger, instrumentation *EmulatorInstrument) *MeterEmulator {
	var inst []EmulatorInstrument
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return &MeterEmulator{
		table:      NewMeterRegisterTable(),
		logger:     logger.With(zap.String("component", "emulator")),
		instrument: inst,
	}
}

// Table exposes the backing register table.
func (e *MeterEmulator) Table() *RegisterTable {
	return e.table
}

// Apply writes a single sample into the table.
func (e *MeterEmulator) Apply(sample Sample) error {
	addr, ok := sample.Quantity.Address()
	if !ok {
		e.logger.Warn("emulator@update unknown quantity", zap.Stringer("quantity", sample.Quantity))
		e.recordUpdate(sample.Quantity, ErrAddressNotMapped)
		return ErrAddressNotMapped
	}
	err := e.table.WriteFloat32(addr, sample.Value)
	if err != nil {
		e.logger.Warn("emulator@update register not mapped, value dropped",
			zap.Stringer("quantity", sample.Quantity), zap.Uint16("address", addr), zap.Float32("value", sample.Value))
	}
	e.recordUpdate(sample.Quantity, err)
	return err
}

// Run drains updates into the table until ctx is done or the source closes.
func (e *MeterEmulator) Run(ctx context.Context, updates UpdateSource) error {
	e.logger.Info("emulator@run started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("emulator@run stopped")
			return ctx.Err()
		case sample, ok := <-updates.Receive():
			if !ok {
				e.logger.Info("emulator@run update source closed")
				return nil
			}
			e.logger.Debug("emulator@run update", zap.Stringer("quantity", sample.Quantity), zap.Float32("value", sample.Value))
			_ = e.Apply(sample)
		}
	}
}

// ReadRegisters answers a read query from the table.
func (e *MeterEmulator) ReadRegisters(addr uint16, count uint16) ([]uint16, error) {
	return e.table.Read(addr, count)
}

// ReadFloat32 decodes the current value of a quantity.
func (e *MeterEmulator) ReadFloat32(q Quantity) (float32, error) {
	addr, ok := q.Address()
	if !ok {
		return 0, ErrAddressNotMapped
	}
	return e.table.ReadFloat32(addr)
}

func (e *MeterEmulator) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	e.recordRequest(REQUEST_KIND_COILS, modbus.ErrIllegalFunction)
	return nil, modbus.ErrIllegalFunction
}

func (e *MeterEmulator) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	e.recordRequest(REQUEST_KIND_DISCRETE_INPUTS, modbus.ErrIllegalFunction)
	return nil, modbus.ErrIllegalFunction
}

func (e *MeterEmulator) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		e.logger.Debug("emulator@serve write rejected", zap.Uint16("address", req.Addr), zap.Uint16("quantity", req.Quantity))
		e.recordRequest(REQUEST_KIND_HOLDING_REGISTER, modbus.ErrIllegalFunction)
		return nil, modbus.ErrIllegalFunction
	}
	return e.serveRead(REQUEST_KIND_HOLDING_REGISTER, req.ClientAddr, req.Addr, req.Quantity)
}

func (e *MeterEmulator) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return e.serveRead(REQUEST_KIND_INPUT_REGISTER, req.ClientAddr, req.Addr, req.Quantity)
}

func (e *MeterEmulator) serveRead(kind, client string, addr, count uint16) ([]uint16, error) {
	values, err := e.table.Read(addr, count)
	if err != nil {
		e.logger.Debug("emulator@serve read rejected", zap.String("kind", kind), zap.String("client", client),
			zap.Uint16("address", addr), zap.Uint16("quantity", count))
	}
	e.recordRequest(kind, err)
	return values, err
}

func (e *MeterEmulator) recordRequest(kind string, err error) {
	for i := range e.instrument {
		if e.instrument[i].RecordRequest != nil {
			e.instrument[i].RecordRequest(kind, err)
		}
	}
}

func (e *MeterEmulator) recordUpdate(q Quantity, err error) {
	for i := range e.instrument {
		if e.instrument[i].RecordUpdate != nil {
			e.instrument[i].RecordUpdate(q, err)
		}
	}
}

// IsRequestError reports whether err is one of the Modbus exceptions the
// emulator answers with.
func IsRequestError(err error) bool {
	return errors.Is(err, modbus.ErrIllegalDataAddress) || errors.Is(err, modbus.ErrIllegalFunction)
}
