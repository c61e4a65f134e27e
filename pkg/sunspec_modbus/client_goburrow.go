package sunspec_modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

type closer interface {
	Connect() error
	Close() error
}

// GoburrowTransport reads holding registers with goburrow/modbus.
type GoburrowTransport struct {
	handler    closer
	client     modbus.Client
	instrument []ModbusInstrument
}

func (t *GoburrowTransport) Open() error {
	return t.handler.Connect()
}

func (t *GoburrowTransport) Close() error {
	return t.handler.Close()
}

func (t *GoburrowTransport) ReadRegisters(addr uint32, count uint16) ([]uint16, error) {
	pa, err := protocolAddress(addr, count)
	if err != nil {
		return nil, err
	}
	defer RecordTimer("ReadHoldingRegisters", t.instrument)()
	raw, err := t.client.ReadHoldingRegisters(pa, count)
	if err != nil {
		return nil, err
	}
	if len(raw) != 2*int(count) {
		return nil, fmt.Errorf("modbus: got %d bytes for %d registers", len(raw), count)
	}
	return unpackRegisters(raw), nil
}

func unpackRegisters(raw []byte) []uint16 {
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	return out
}

func CreateGoburrowTransport(cfg TransportConfig, logger *zap.Logger, instrumentation ...ModbusInstrument) (*GoburrowTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}

	var handler closer
	var client modbus.Client
	switch u.Scheme {
	case "tcp":
		h := modbus.NewTCPClientHandler(u.Host)
		h.SlaveId = cfg.UnitId
		h.Timeout = cfg.Timeout
		handler, client = h, modbus.NewClient(h)
	case "rtu":
		h := modbus.NewRTUClientHandler(u.Path)
		h.SlaveId = cfg.UnitId
		h.Timeout = cfg.Timeout
		h.BaudRate = int(cfg.BaudRate)
		if h.BaudRate == 0 {
			h.BaudRate = 19200
		}
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 2
		handler, client = h, modbus.NewClient(h)
	default:
		return nil, errors.New("modbus: unsupported url scheme " + u.Scheme)
	}

	if logger != nil {
		logger = logger.With(zap.String("transport", cfg.URL), zap.Uint8("unit_id", cfg.UnitId))
	}
	return &GoburrowTransport{
		handler:    handler,
		client:     client,
		instrument: instruments(logger, instrumentation),
	}, nil
}
