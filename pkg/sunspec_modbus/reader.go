package sunspec_modbus

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"go.uber.org/zap"
)

const (
	// "SunS"
	SignatureHi uint16 = 0x5375
	SignatureLo uint16 = 0x6e53

	EndMarkerDid uint16 = 0xFFFF

	// hex 0x40001 is a frequent misreading of register 40001
	ambiguousBaseRegister uint32 = 0x40001
)

var (
	ErrSignatureNotFound = errors.New("sunspec_modbus: sunspec signature not found")
	ErrMissingEndMarker  = errors.New("sunspec_modbus: missing end marker")
)

// ReadError is a register read that failed after every attempt.
type ReadError struct {
	Addr     uint32
	Count    uint16
	Attempts int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("sunspec_modbus: read %d registers at %d failed after %d attempts: %v", e.Count, e.Addr, e.Attempts, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

type ReaderConfig struct {
	SignatureAddresses  []uint32
	Retries             int
	MaxRegistersPerRead uint16
}

func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		SignatureAddresses:  []uint32{1, 40001, 50001, 0x40001},
		Retries:             2,
		MaxRegistersPerRead: 125,
	}
}

// DeviceReader discovers and decodes the models of one device. It owns the
// transport session: calls must not overlap.
type DeviceReader struct {
	transport Transport
	dids      *sunspec.DidTable
	cfg       ReaderConfig
	diag      sunspec.Diagnostics
	logger    *zap.Logger
}

func NewDeviceReader(transport Transport, dids *sunspec.DidTable, cfg ReaderConfig, diag sunspec.Diagnostics, logger *zap.Logger) *DeviceReader {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.MaxRegistersPerRead == 0 {
		cfg.MaxRegistersPerRead = DefaultReaderConfig().MaxRegistersPerRead
	}
	if len(cfg.SignatureAddresses) == 0 {
		cfg.SignatureAddresses = DefaultReaderConfig().SignatureAddresses
	}
	if diag == nil {
		diag = sunspec.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceReader{
		transport: transport,
		dids:      dids,
		cfg:       cfg,
		diag:      diag,
		logger:    logger,
	}
}

// FindSignature returns the first candidate base register holding the SunSpec
// signature.
func (r *DeviceReader) FindSignature(ctx context.Context) (uint32, error) {
	var lastErr error
	for _, addr := range r.cfg.SignatureAddresses {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		regs, err := r.readChunk(ctx, addr, 2)
		if err != nil {
			r.logger.Debug("signature probe failed", zap.Uint32("addr", addr), zap.Error(err))
			lastErr = err
			continue
		}
		if regs[0] == SignatureHi && regs[1] == SignatureLo {
			if addr == ambiguousBaseRegister {
				r.diag.Warn(sunspec.Warning{Kind: sunspec.WarnAmbiguousBaseAddress, Address: addr})
			}
			r.logger.Debug("signature found", zap.Uint32("base_register", addr))
			return addr, nil
		}
	}
	if lastErr != nil {
		return 0, fmt.Errorf("%w: %w", ErrSignatureNotFound, lastErr)
	}
	return 0, ErrSignatureNotFound
}

// ReadDevice walks every model block of the device. The returned Device is
// never nil: on error it holds the datasets decoded before the failure.
func (r *DeviceReader) ReadDevice(ctx context.Context) (*sunspec.Device, error) {
	dev := sunspec.NewDevice()

	base, err := r.FindSignature(ctx)
	if err != nil {
		return dev, err
	}

	offset := uint32(2)
	for {
		if err := ctx.Err(); err != nil {
			return dev, err
		}
		addr := base + offset
		header, err := r.readChunk(ctx, addr, 2)
		if err != nil {
			return dev, err
		}
		block := modbusBlock{id: header[0], length: header[1], baseAddr: addr}
		if block.isEndBlock() {
			r.logger.Debug("end marker", zap.Uint32("addr", addr), zap.Int("datasets", len(dev.Datasets)))
			return dev, nil
		}
		if block.id == 0 {
			return dev, fmt.Errorf("%w at register %d", ErrMissingEndMarker, addr)
		}

		md, known := r.dids.Lookup(block.id)
		if known && int(block.length) != md.Model.Len {
			r.logger.Debug("model length differs", zap.Uint16("did", block.id),
				zap.Uint16("len", block.length), zap.Int("model_len", md.Model.Len))
		}

		regs, err := r.readRegisters(ctx, addr, int(block.length)+2)
		if err != nil {
			return dev, err
		}
		buf := SwapRegisters(regs)

		if known {
			ds, err := sunspec.DecodeData(r.dids, buf, r.diag)
			if err != nil {
				return dev, fmt.Errorf("model %s (did %d) at register %d: %w", md.Model.Name, block.id, addr, err)
			}
			dev.AddDataset(ds)
		} else {
			r.diag.Warn(sunspec.Warning{Kind: sunspec.WarnUnknownDid, Did: block.id, Address: addr, Actual: int(block.length)})
			if ce := r.logger.Check(zap.DebugLevel, "unknown did"); ce != nil {
				ce.Write(zap.Uint16("did", block.id), zap.String("raw", hex.EncodeToString(buf)))
			}
		}

		offset += block.next()
	}
}

type modbusBlock struct {
	id       uint16
	baseAddr uint32
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == EndMarkerDid || block.length == 0
}

// next is the distance in registers to the following block header.
func (block *modbusBlock) next() uint32 {
	return uint32(block.length) + 2
}

// readRegisters reads count registers in chunks of at most
// MaxRegistersPerRead, each retried on its own.
func (r *DeviceReader) readRegisters(ctx context.Context, addr uint32, count int) ([]uint16, error) {
	out := make([]uint16, 0, count)
	for count > 0 {
		n := min(count, int(r.cfg.MaxRegistersPerRead))
		regs, err := r.readChunk(ctx, addr, uint16(n))
		if err != nil {
			return nil, err
		}
		out = append(out, regs...)
		addr += uint32(n)
		count -= n
	}
	return out, nil
}

func (r *DeviceReader) readChunk(ctx context.Context, addr uint32, count uint16) ([]uint16, error) {
	var err error
	attempt := 1
	for ; attempt <= r.cfg.Retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var regs []uint16
		regs, err = r.transport.ReadRegisters(addr, count)
		if err == nil {
			if len(regs) != int(count) {
				return nil, fmt.Errorf("sunspec_modbus: read %d registers at %d, got %d", count, addr, len(regs))
			}
			return regs, nil
		}
		r.logger.Debug("read failed", zap.Uint32("addr", addr), zap.Uint16("count", count),
			zap.Int("attempt", attempt), zap.Error(err))
		// the same request fails the same way every time
		if errors.Is(err, ErrAddressOutOfRange) {
			break
		}
	}
	if attempt > r.cfg.Retries {
		attempt = r.cfg.Retries
	}
	return nil, &ReadError{Addr: addr, Count: count, Attempts: attempt, Err: err}
}

// SwapRegisters serialises registers to big-endian bytes, the wire order the
// decoder expects.
func SwapRegisters(regs []uint16) []byte {
	buf := make([]byte, 2*len(regs))
	for i, v := range regs {
		binary.BigEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}
