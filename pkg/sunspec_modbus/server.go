package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// TestServer serves a register image over Modbus TCP. Holding and input
// registers both read from the same image.
type TestServer struct {
	server    *modbus.ModbusServer
	registers Transport
	logger    *zap.Logger
}

// NewTestServer listens on url, e.g. "tcp://localhost:5502".
func NewTestServer(url string, registers Transport, logger *zap.Logger) (*TestServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ts := &TestServer{registers: registers, logger: logger}
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		MaxClients: 4,
	}, ts)
	if err != nil {
		return nil, err
	}
	ts.server = server
	return ts, nil
}

func (ts *TestServer) Start() error {
	return ts.server.Start()
}

func (ts *TestServer) Stop() error {
	return ts.server.Stop()
}

func (ts *TestServer) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (ts *TestServer) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (ts *TestServer) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	return ts.read(uint32(req.Addr)+1, req.Quantity)
}

func (ts *TestServer) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return ts.read(uint32(req.Addr)+1, req.Quantity)
}

func (ts *TestServer) read(addr uint32, count uint16) ([]uint16, error) {
	regs, err := ts.registers.ReadRegisters(addr, count)
	if err != nil {
		ts.logger.Debug("test server read failed", zap.Uint32("addr", addr), zap.Uint16("count", count), zap.Error(err))
		if errors.Is(err, ErrAddressOutOfRange) {
			return nil, modbus.ErrIllegalDataAddress
		}
		return nil, modbus.ErrServerDeviceFailure
	}
	return regs, nil
}
