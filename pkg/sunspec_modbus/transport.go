package sunspec_modbus

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var ErrAddressOutOfRange = errors.New("sunspec_modbus: register address out of range")

// Transport reads holding registers. Addresses are 1-based register numbers,
// the convention SunSpec base addresses (40001, 50001) are written in.
type Transport interface {
	ReadRegisters(addr uint32, count uint16) ([]uint16, error)
}

// Session is a Transport over a connection that must be opened first.
type Session interface {
	Transport
	Open() error
	Close() error
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
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

// protocolAddress converts a 1-based register number into the 0-based address
// carried in Modbus requests.
func protocolAddress(addr uint32, count uint16) (uint16, error) {
	if addr == 0 || uint64(addr)-1+uint64(count) > 0x10000 {
		return 0, fmt.Errorf("%w: %d+%d", ErrAddressOutOfRange, addr, count)
	}
	return uint16(addr - 1), nil
}

const (
	DriverSimonvetter = "simonvetter"
	DriverGoburrow    = "goburrow"
)

// CreateSession builds a Session for the named Modbus driver. An empty driver
// selects simonvetter.
func CreateSession(driver string, cfg TransportConfig, logger *zap.Logger, instrumentation ...ModbusInstrument) (Session, error) {
	switch driver {
	case "", DriverSimonvetter:
		return CreateModbusTransport(cfg, logger, instrumentation...)
	case DriverGoburrow:
		return CreateGoburrowTransport(cfg, logger, instrumentation...)
	}
	return nil, fmt.Errorf("sunspec_modbus: unknown modbus driver %q", driver)
}
