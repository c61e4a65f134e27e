package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	"github.com/berfenger/sunspec2mqtt/internal/util"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testReaderProps(t *testing.T, image *sunspec_modbus.RegisterMap, table *sunspec.DidTable) *actor.Props {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	return actor.PropsFromProducer(func() actor.Actor {
		return NewReaderActor(func() (sunspec_modbus.Session, error) {
			return image, nil
		}, table, cfg.Reader.DeviceReader(), nil, cfg.Monitor.ReadTimeout(), logger)
	})
}

func readImage(table *sunspec.DidTable, image *sunspec_modbus.RegisterMap) (*sunspec.Device, error) {
	cfg := util.LoadTestConfig()
	return sunspec_modbus.NewDeviceReader(image, table, cfg.Reader.DeviceReader(), nil, nil).ReadDevice(context.Background())
}

func TestReaderActor(t *testing.T) {

	assert := assert.New(t)

	table, image, err := util.TestDeviceImage()
	require.NoError(t, err)

	as := actor.NewActorSystem()
	defer as.Shutdown()
	pid := as.Root.Spawn(testReaderProps(t, image, table))

	res, err := as.Root.RequestFuture(pid, domain.ReadDeviceRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.ReadDeviceResponse)
	require.True(t, ok)
	require.NoError(t, resp.GetResponseError())

	assert.Equal("Fronius", resp.Device.Manufacturer)
	assert.Equal("fronius_12345678", resp.Device.Id())
	assert.Len(resp.Device.Datasets, 2)
	inv, ok := resp.Device.Dataset(101)
	require.True(t, ok)
	w, _ := inv.Value("W")
	d, _ := w.Scaled()
	assert.Equal("150", d.String())

	res, err = as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 1*time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal(domain.ACTOR_ID_READER, health.Id)
}

func TestReaderActorFailure(t *testing.T) {

	assert := assert.New(t)

	table, _, err := util.TestDeviceImage()
	require.NoError(t, err)

	as := actor.NewActorSystem()
	defer as.Shutdown()
	pid := as.Root.Spawn(testReaderProps(t, sunspec_modbus.NewRegisterMap(), table))

	res, err := as.Root.RequestFuture(pid, domain.ReadDeviceRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := res.(domain.ReadDeviceResponse)
	assert.True(errors.Is(resp.GetResponseError(), sunspec_modbus.ErrSignatureNotFound))
	require.NotNil(t, resp.Device)
	assert.Empty(resp.Device.Datasets)

	res, err = as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 1*time.Second).Result()
	require.NoError(t, err)
	assert.False(res.(domain.ActorHealthResponse).Healthy)
}

func TestReaderActorReplyTo(t *testing.T) {

	assert := assert.New(t)

	table, image, err := util.TestDeviceImage()
	require.NoError(t, err)

	as := actor.NewActorSystem()
	defer as.Shutdown()
	pid := as.Root.Spawn(testReaderProps(t, image, table))

	received := make(chan domain.ReadDeviceResponse, 1)
	recipient := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if resp, ok := ctx.Message().(domain.ReadDeviceResponse); ok {
			received <- resp
		}
	}))

	as.Root.Send(pid, domain.ReadDeviceRequest{ActorRequestMixIn: domain.ReplyToPID(recipient)})

	select {
	case resp := <-received:
		assert.NoError(resp.GetResponseError())
		assert.Len(resp.Device.Datasets, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no response")
	}
}

// slowSession blocks the first register read and records how many reads
// overlap.
type slowSession struct {
	*sunspec_modbus.RegisterMap
	delay     time.Duration
	mu        sync.Mutex
	calls     int
	inFlight  int
	maxFlight int
}

func (s *slowSession) ReadRegisters(addr uint32, count uint16) ([]uint16, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	s.mu.Unlock()

	if first {
		time.Sleep(s.delay)
	}
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()
	return s.RegisterMap.ReadRegisters(addr, count)
}

func (s *slowSession) overlapping() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFlight
}

func TestReaderActorSerializesReads(t *testing.T) {

	assert := assert.New(t)

	table, image, err := util.TestDeviceImage()
	require.NoError(t, err)
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	// the transport call outlives the read deadline
	session := &slowSession{RegisterMap: image, delay: 2500 * time.Millisecond}
	as := actor.NewActorSystem()
	defer as.Shutdown()
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewReaderActor(func() (sunspec_modbus.Session, error) {
			return session, nil
		}, table, cfg.Reader.DeviceReader(), nil, 100*time.Millisecond, logger)
	}))

	first := as.Root.RequestFuture(pid, domain.ReadDeviceRequest{}, 10*time.Second)
	second := as.Root.RequestFuture(pid, domain.ReadDeviceRequest{}, 10*time.Second)

	res, err := first.Result()
	require.NoError(t, err)
	assert.ErrorIs(res.(domain.ReadDeviceResponse).GetResponseError(), context.DeadlineExceeded)

	res, err = second.Result()
	require.NoError(t, err)
	resp := res.(domain.ReadDeviceResponse)
	assert.NoError(resp.GetResponseError())
	assert.Len(resp.Device.Datasets, 2)

	assert.Equal(1, session.overlapping())
}
