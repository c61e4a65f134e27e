package sunspec_modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// TransportConfig describes a Modbus connection. URL is tcp://host:port or
// rtu:///dev/ttyUSB0.
type TransportConfig struct {
	URL      string
	UnitId   uint8
	Timeout  time.Duration
	BaudRate uint
}

// ModbusTransport reads holding registers with simonvetter/modbus.
type ModbusTransport struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

func (t *ModbusTransport) Open() error {
	return t.client.Open()
}

func (t *ModbusTransport) Close() error {
	return t.client.Close()
}

func (t *ModbusTransport) ReadRegisters(addr uint32, count uint16) ([]uint16, error) {
	pa, err := protocolAddress(addr, count)
	if err != nil {
		return nil, err
	}
	defer RecordTimer("ReadRegisters", t.instrument)()
	return t.client.ReadRegisters(pa, count, modbus.HOLDING_REGISTER)
}

func debugLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug(fmt.Sprintf("modbus [%s]: %d millis", fnName, readTime.Milliseconds()))
		},
	}
}

func instruments(logger *zap.Logger, instrumentation []ModbusInstrument) []ModbusInstrument {
	var inst []ModbusInstrument
	if logger != nil {
		inst = append(inst, *debugLoggerInstrumentation(logger))
	}
	return append(inst, instrumentation...)
}

func CreateModbusTransport(cfg TransportConfig, logger *zap.Logger, instrumentation ...ModbusInstrument) (*ModbusTransport, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     cfg.URL,
		Speed:   cfg.BaudRate,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.UnitId > 0 {
		err = client.SetUnitId(cfg.UnitId)
		if err != nil {
			return nil, err
		}
	}

	if logger != nil {
		logger = logger.With(zap.String("transport", cfg.URL), zap.Uint8("unit_id", cfg.UnitId))
	}
	return &ModbusTransport{
		client:     client,
		instrument: instruments(logger, instrumentation),
	}, nil
}
