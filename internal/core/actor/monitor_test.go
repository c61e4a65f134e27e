package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/sunspec2mqtt/internal/adapter/actor"
	"github.com/berfenger/sunspec2mqtt/internal/config"
	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	"github.com/berfenger/sunspec2mqtt/internal/util"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu        sync.Mutex
	reads     []error
	durations []time.Duration
}

func (o *recordingObserver) ObserveRead(_ *sunspec.Device, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads = append(o.reads, err)
	o.durations = append(o.durations, duration)
}

func (o *recordingObserver) duration(i int) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.durations[i]
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.reads)
}

func testReaderProvider(t *testing.T, cfg config.Config, image *sunspec_modbus.RegisterMap, logger *zap.Logger) ReaderActorProvider {
	table, _, err := util.TestDeviceImage()
	require.NoError(t, err)
	return func() *adactor.ReaderActor {
		return adactor.NewReaderActor(func() (sunspec_modbus.Session, error) {
			return image, nil
		}, table, cfg.Reader.DeviceReader(), nil, cfg.Monitor.ReadTimeout(), logger)
	}
}

func subscribeDeviceUpdates(es *eventstream.EventStream) (chan domain.DeviceUpdateEvent, *eventstream.Subscription) {
	events := make(chan domain.DeviceUpdateEvent, 8)
	sub := es.Subscribe(func(value any) {
		if ev, ok := value.(domain.DeviceUpdateEvent); ok {
			select {
			case events <- ev:
			default:
			}
		}
	})
	return events, sub
}

func TestMonitorActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	_, image, err := util.TestDeviceImage()
	require.NoError(t, err)

	as := actor.NewActorSystem()
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	events, sub := subscribeDeviceUpdates(es)
	defer es.Unsubscribe(sub)

	readerProvider := testReaderProvider(t, cfg, image, logger)
	reader := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return readerProvider() }))
	observer := &recordingObserver{}
	monitor := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMonitorActor(&cfg, reader, es, observer, logger)
	}))

	// first poll runs at start
	select {
	case ev := <-events:
		assert.Equal("fronius_12345678", ev.EventId())
		assert.Equal("Fronius", ev.Device.Manufacturer)
	case <-time.After(5 * time.Second):
		t.Fatal("no device update")
	}
	assert.Equal(1, observer.count())

	res, err := as.Root.RequestFuture(monitor, domain.GetDeviceRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := res.(domain.GetDeviceResponse)
	assert.NoError(resp.GetResponseError())
	assert.Equal("fronius_12345678", resp.DeviceId)
	assert.Len(resp.Device.Datasets, 2)

	as.Root.Send(monitor, domain.RefreshRequest{})
	select {
	case <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not poll")
	}

	res, err = as.Root.RequestFuture(monitor, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.True(res.(domain.ActorHealthResponse).Healthy)
}

func TestMonitorActorConfiguredDeviceId(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.MQTT.DeviceId = "roof"
	logger := zap.Must(zap.NewDevelopment())
	_, image, err := util.TestDeviceImage()
	require.NoError(t, err)

	as := actor.NewActorSystem()
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	events, sub := subscribeDeviceUpdates(es)
	defer es.Unsubscribe(sub)

	readerProvider := testReaderProvider(t, cfg, image, logger)
	reader := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return readerProvider() }))
	as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMonitorActor(&cfg, reader, es, nil, logger)
	}))

	select {
	case ev := <-events:
		assert.Equal("roof", ev.EventId())
	case <-time.After(5 * time.Second):
		t.Fatal("no device update")
	}
}

func TestMonitorActorReadFailure(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	events, sub := subscribeDeviceUpdates(es)
	defer es.Unsubscribe(sub)

	readerProvider := testReaderProvider(t, cfg, sunspec_modbus.NewRegisterMap(), logger)
	reader := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return readerProvider() }))
	observer := &recordingObserver{}
	monitor := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMonitorActor(&cfg, reader, es, observer, logger)
	}))

	assert.Eventually(func() bool { return observer.count() > 0 }, 5*time.Second, 50*time.Millisecond)

	res, err := as.Root.RequestFuture(monitor, domain.GetDeviceRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := res.(domain.GetDeviceResponse)
	assert.ErrorIs(resp.GetResponseError(), domain.ErrNoDevice)
	assert.ErrorIs(resp.GetResponseError(), sunspec_modbus.ErrSignatureNotFound)
	assert.Nil(resp.Device)

	res, err = as.Root.RequestFuture(monitor, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.False(res.(domain.ActorHealthResponse).Healthy)

	select {
	case <-events:
		t.Fatal("failed read published an update")
	default:
	}
}

func TestMonitorActorMeasuresUntimedReads(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	defer as.Shutdown()

	// answers late and without a duration, like a failed reader future
	reader := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(domain.ReadDeviceRequest); ok {
			time.Sleep(200 * time.Millisecond)
			ctx.Respond(domain.ReadDeviceResponse{ActorResponseMixIn: domain.ErrorResponse(errors.New("no answer"))})
		}
	}))
	observer := &recordingObserver{}
	as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMonitorActor(&cfg, reader, nil, observer, logger)
	}))

	require.Eventually(t, func() bool { return observer.count() > 0 }, 5*time.Second, 50*time.Millisecond)
	assert.GreaterOrEqual(observer.duration(0), 200*time.Millisecond)
}
