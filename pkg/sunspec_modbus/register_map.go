package sunspec_modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

var ErrTransportFault = errors.New("sunspec_modbus: injected transport fault")

// ReadCall records one ReadRegisters call served by a RegisterMap.
type ReadCall struct {
	Addr  uint32
	Count uint16
}

// RegisterMap is an in-memory register image that implements Session. Unset
// registers read as ErrAddressOutOfRange.
type RegisterMap struct {
	mu        sync.Mutex
	registers map[uint32]uint16
	failures  map[uint32]int
	calls     []ReadCall
}

func NewRegisterMap() *RegisterMap {
	return &RegisterMap{
		registers: make(map[uint32]uint16),
		failures:  make(map[uint32]int),
	}
}

// Set stores values starting at register addr.
func (m *RegisterMap) Set(addr uint32, values ...uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range values {
		m.registers[addr+uint32(i)] = v
	}
}

// SetBytes stores big-endian data starting at register addr. An odd trailing
// byte is padded with zero.
func (m *RegisterMap) SetBytes(addr uint32, data []byte) {
	if len(data)%2 != 0 {
		data = append(data, 0)
	}
	values := make([]uint16, len(data)/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	m.Set(addr, values...)
}

// FailReads makes the next n reads starting at addr fail.
func (m *RegisterMap) FailReads(addr uint32, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[addr] += n
}

func (m *RegisterMap) Calls() []ReadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReadCall(nil), m.calls...)
}

func (m *RegisterMap) Open() error {
	return nil
}

func (m *RegisterMap) Close() error {
	return nil
}

func (m *RegisterMap) ReadRegisters(addr uint32, count uint16) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ReadCall{Addr: addr, Count: count})
	if m.failures[addr] > 0 {
		m.failures[addr]--
		return nil, fmt.Errorf("%w at %d", ErrTransportFault, addr)
	}
	out := make([]uint16, count)
	for i := range out {
		v, ok := m.registers[addr+uint32(i)]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrAddressOutOfRange, addr+uint32(i))
		}
		out[i] = v
	}
	return out, nil
}
