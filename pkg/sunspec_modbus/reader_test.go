package sunspec_modbus

import (
	"context"
	"errors"
	"testing"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFindSignature(t *testing.T) {

	cases := []struct {
		name  string
		base  uint32
		kinds []sunspec.WarningKind
	}{
		{name: "register 1", base: 1},
		{name: "register 40001", base: 40001},
		{name: "register 50001", base: 50001},
		{name: "hex 40001", base: 0x40001, kinds: []sunspec.WarningKind{sunspec.WarnAmbiguousBaseAddress}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &sunspec.Collector{}
			reader := NewDeviceReader(testImage(tc.base), testTable(t), testReaderConfig(), c, zap.Must(zap.NewDevelopment()))
			base, err := reader.FindSignature(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, tc.base, base)
			assert.Equal(t, tc.kinds, c.Kinds())
		})
	}
}

func TestFindSignatureNotFound(t *testing.T) {

	assert := assert.New(t)

	m := NewRegisterMap()
	m.Set(40001, 0x5375, 0)
	reader := NewDeviceReader(m, testTable(t), testReaderConfig(), nil, nil)
	_, err := reader.FindSignature(context.Background())
	assert.ErrorIs(err, ErrSignatureNotFound)
	assert.ErrorIs(err, ErrAddressOutOfRange)
}

func TestFindSignatureOutOfRangeNotRetried(t *testing.T) {

	assert := assert.New(t)

	m := NewRegisterMap()
	cfg := testReaderConfig()
	cfg.SignatureAddresses = []uint32{0x40001}
	cfg.Retries = 3
	reader := NewDeviceReader(m, testTable(t), cfg, nil, nil)

	_, err := reader.FindSignature(context.Background())
	assert.ErrorIs(err, ErrAddressOutOfRange)
	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(1, readErr.Attempts)
	assert.Len(m.Calls(), 1)
}

func TestReadDevice(t *testing.T) {

	assert := assert.New(t)

	m := testImage(40001)
	c := &sunspec.Collector{}
	reader := NewDeviceReader(m, testTable(t), testReaderConfig(), c, zap.Must(zap.NewDevelopment()))

	dev, err := reader.ReadDevice(context.Background())
	require.NoError(t, err)
	assert.Empty(c.Warnings())
	assert.Equal("ACME", dev.Manufacturer)
	assert.Equal("0042", dev.SerialNumber)
	assert.Equal("acme_0042", dev.Id())
	require.Len(t, dev.Datasets, 2)

	inv, ok := dev.Dataset(101)
	require.True(t, ok)
	w, _ := inv.Value("W")
	d, _ := w.Scaled()
	assert.Equal("150", d.String())
	wh, _ := inv.Value("WH")
	assert.Equal(sunspec.U32(70000), wh.Payload)

	// the read at 1 is out of range and not retried, then signature, two headers
	// plus blocks, end marker
	assert.Equal([]ReadCall{
		{Addr: 1, Count: 2},
		{Addr: 40001, Count: 2},
		{Addr: 40003, Count: 2}, {Addr: 40003, Count: 6},
		{Addr: 40009, Count: 2}, {Addr: 40009, Count: 6},
		{Addr: 40015, Count: 2},
	}, m.Calls())
}

func TestReadDeviceMinimalBlock(t *testing.T) {

	assert := assert.New(t)

	m := NewRegisterMap()
	m.Set(40001, SignatureHi, SignatureLo, 1, 2, 0x4142, 0x4344, EndMarkerDid, 0)

	c := &sunspec.Collector{}
	reader := NewDeviceReader(m, testTable(t), testReaderConfig(), c, nil)
	dev, err := reader.ReadDevice(context.Background())
	require.NoError(t, err)
	require.Len(t, dev.Datasets, 1)
	assert.Equal(uint16(1), dev.Datasets[0].Did.Did)
	assert.Equal("ABCD", dev.Manufacturer)
	assert.Contains(c.Kinds(), sunspec.WarnLengthMismatch)
}

func TestReadDeviceChunking(t *testing.T) {

	assert := assert.New(t)

	m := testImage(40001)
	cfg := testReaderConfig()
	cfg.MaxRegistersPerRead = 4
	cfg.SignatureAddresses = []uint32{40001}
	reader := NewDeviceReader(m, testTable(t), cfg, nil, nil)

	dev, err := reader.ReadDevice(context.Background())
	require.NoError(t, err)
	assert.Len(dev.Datasets, 2)
	assert.Equal([]ReadCall{
		{Addr: 40001, Count: 2},
		{Addr: 40003, Count: 2}, {Addr: 40003, Count: 4}, {Addr: 40007, Count: 2},
		{Addr: 40009, Count: 2}, {Addr: 40009, Count: 4}, {Addr: 40013, Count: 2},
		{Addr: 40015, Count: 2},
	}, m.Calls())
}

func TestReadDeviceRetry(t *testing.T) {

	assert := assert.New(t)

	m := testImage(40001)
	m.FailReads(40009, 1)
	cfg := testReaderConfig()
	cfg.SignatureAddresses = []uint32{40001}
	reader := NewDeviceReader(m, testTable(t), cfg, nil, nil)

	dev, err := reader.ReadDevice(context.Background())
	assert.NoError(err)
	assert.Len(dev.Datasets, 2)
}

func TestReadDeviceRetriesExhausted(t *testing.T) {

	assert := assert.New(t)

	m := testImage(40001)
	m.FailReads(40009, 2)
	cfg := testReaderConfig()
	cfg.SignatureAddresses = []uint32{40001}
	reader := NewDeviceReader(m, testTable(t), cfg, nil, nil)

	dev, err := reader.ReadDevice(context.Background())
	assert.ErrorIs(err, ErrTransportFault)
	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(uint32(40009), readErr.Addr)
	assert.Equal(2, readErr.Attempts)

	// the common model read before the failure is kept
	require.NotNil(t, dev)
	assert.Len(dev.Datasets, 1)
	assert.Equal("ACME", dev.Manufacturer)
}

func TestReadDeviceUnknownDid(t *testing.T) {

	assert := assert.New(t)

	m := NewRegisterMap()
	m.Set(40001, SignatureHi, SignatureLo)
	m.Set(40003, 64000, 3, 1, 2, 3)
	m.Set(40008, 101, 4, 10, 0, 0, 1)
	m.Set(40014, EndMarkerDid, 0)

	c := &sunspec.Collector{}
	reader := NewDeviceReader(m, testTable(t), testReaderConfig(), c, zap.Must(zap.NewDevelopment()))
	dev, err := reader.ReadDevice(context.Background())
	require.NoError(t, err)
	require.Len(t, dev.Datasets, 1)
	assert.Equal("inverter", dev.Datasets[0].Model())

	require.Equal(t, []sunspec.WarningKind{sunspec.WarnUnknownDid}, c.Kinds())
	assert.Equal(uint16(64000), c.Warnings()[0].Did)
	assert.Equal(uint32(40003), c.Warnings()[0].Address)
}

func TestReadDeviceMissingEndMarker(t *testing.T) {

	assert := assert.New(t)

	m := NewRegisterMap()
	m.Set(40001, SignatureHi, SignatureLo)
	m.Set(40003, 101, 4, 10, 0, 0, 1)
	m.Set(40009, 0, 4)

	reader := NewDeviceReader(m, testTable(t), testReaderConfig(), nil, nil)
	dev, err := reader.ReadDevice(context.Background())
	assert.ErrorIs(err, ErrMissingEndMarker)
	assert.Len(dev.Datasets, 1)
}

func TestReadDeviceZeroLengthTerminates(t *testing.T) {

	m := NewRegisterMap()
	m.Set(40001, SignatureHi, SignatureLo, 101, 0)

	reader := NewDeviceReader(m, testTable(t), testReaderConfig(), nil, nil)
	dev, err := reader.ReadDevice(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, dev.Datasets)
}

func TestReadDeviceRepeatedDid(t *testing.T) {

	assert := assert.New(t)

	m := NewRegisterMap()
	m.Set(40001, SignatureHi, SignatureLo)
	m.Set(40003, 101, 4, 10, 0, 0, 1)
	m.Set(40009, 101, 4, 20, 0, 0, 2)
	m.Set(40015, EndMarkerDid, 0)

	reader := NewDeviceReader(m, testTable(t), testReaderConfig(), nil, nil)
	dev, err := reader.ReadDevice(context.Background())
	require.NoError(t, err)
	require.Len(t, dev.Datasets, 2)
	assert.Equal("inverter_1", dev.Datasets[0].Key())
	assert.Equal("inverter_2", dev.Datasets[1].Key())
}

func TestReadDeviceCancelled(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewDeviceReader(testImage(40001), testTable(t), testReaderConfig(), nil, nil)
	dev, err := reader.ReadDevice(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, dev)
}

func TestDeviceImageRoundTrip(t *testing.T) {

	assert := assert.New(t)

	table := testTable(t)
	reader := NewDeviceReader(testImage(40001), table, testReaderConfig(), nil, nil)
	dev, err := reader.ReadDevice(context.Background())
	require.NoError(t, err)

	image, err := NewDeviceImage(1, dev.Datasets...)
	require.NoError(t, err)

	again, err := NewDeviceReader(image, table, testReaderConfig(), nil, nil).ReadDevice(context.Background())
	require.NoError(t, err)
	require.Len(t, again.Datasets, 2)
	assert.Equal(dev.Manufacturer, again.Manufacturer)
	for i := range dev.Datasets {
		assert.Equal(dev.Datasets[i].Values, again.Datasets[i].Values)
	}
}

func TestSwapRegisters(t *testing.T) {
	assert.Equal(t, []byte{0x53, 0x75, 0x6e, 0x53}, SwapRegisters([]uint16{SignatureHi, SignatureLo}))
}
