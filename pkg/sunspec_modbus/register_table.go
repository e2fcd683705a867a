package sunspec_modbus

import (
	"errors"
	"math"
	"sync"

	"github.com/simonvetter/modbus"
)

var ErrAddressNotMapped = errors.New("register address not mapped")

// RegisterTable is a sparse, concurrency safe map of 16 bit registers.
// The set of addresses is fixed at construction; writes never add new ones.
type RegisterTable struct {
	mu   sync.RWMutex
	regs map[uint16]uint16
}

func NewRegisterTable(blocks ...map[uint16]uint16) *RegisterTable {
	regs := make(map[uint16]uint16)
	for _, block := range blocks {
		for addr, value := range block {
			regs[addr] = value
		}
	}
	return &RegisterTable{regs: regs}
}

// NewMeterRegisterTable returns a table seeded with the SunSpec identification,
// the zeroed meter model and the compatibility registers.
func NewMeterRegisterTable() *RegisterTable {
	return NewRegisterTable(identificationBlock(), measurementBlock(), compatibilityBlock())
}

// Read returns count consecutive registers starting at addr. It fails with
// modbus.ErrIllegalDataAddress if any address in the range is absent.
func (t *RegisterTable) Read(addr uint16, count uint16) ([]uint16, error) {
	if uint32(addr)+uint32(count) > math.MaxUint16+1 {
		return nil, modbus.ErrIllegalDataAddress
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	values := make([]uint16, count)
	for i := uint16(0); i < count; i++ {
		value, ok := t.regs[addr+i]
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		values[i] = value
	}
	return values, nil
}

// Has reports whether the address is mapped.
func (t *RegisterTable) Has(addr uint16) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.regs[addr]
	return ok
}

// Len returns the number of mapped registers.
func (t *RegisterTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.regs)
}

// WriteFloat32 stores the IEEE 754 bits of value at addr (high word) and
// addr+1 (low word). Each half is only written if its address is mapped; the
// returned error reports any half that was dropped.
func (t *RegisterTable) WriteFloat32(addr uint16, value float32) error {
	bits := math.Float32bits(value)
	high := uint16(bits >> 16)
	low := uint16(bits)

	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if _, ok := t.regs[addr]; ok {
		t.regs[addr] = high
	} else {
		err = ErrAddressNotMapped
	}
	if addr == math.MaxUint16 {
		return ErrAddressNotMapped
	}
	if _, ok := t.regs[addr+1]; ok {
		t.regs[addr+1] = low
	} else {
		err = ErrAddressNotMapped
	}
	return err
}

// ReadFloat32 decodes the float stored at addr and addr+1, high word first.
func (t *RegisterTable) ReadFloat32(addr uint16) (float32, error) {
	regs, err := t.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(regs[0])<<16 | uint32(regs[1])), nil
}
