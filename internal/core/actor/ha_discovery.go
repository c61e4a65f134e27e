package actor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/berfenger/sunspec2mqtt/internal/config"
	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	"github.com/berfenger/sunspec2mqtt/internal/util/actorutil"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the bridge and the device entities to Home
// Assistant. Discovery is published again whenever the set of datasets read
// from the device changes.
type HADiscoveryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	published      string

	logger *zap.Logger
}

type onDeviceUpdate struct {
	event domain.DeviceUpdateEvent
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		self := ctx.Self()
		system := ctx.ActorSystem()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.DeviceUpdateEvent); ok {
				system.Root.Send(self, onDeviceUpdate{event: ev})
			}
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case onDeviceUpdate:
		signature := datasetSignature(msg.event.Device)
		if signature == state.published {
			return
		}
		state.logger.Info("hadiscovery@default publishing discovery", zap.String("device", msg.event.EventId()),
			zap.String("datasets", signature))
		ctx.Request(state.mqttActor, DiscoveryRequest(state.config.MQTT.BaseTopic, msg.event.EventId(), msg.event.Device))
		state.published = signature
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@default discovery failed", zap.Error(msg.GetResponseError()))
			state.published = ""
		}
	case *actor.Restarting, *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@default: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}

// DiscoveryRequest builds the discovery announcement for the bridge and one
// device.
func DiscoveryRequest(baseTopic, deviceId string, dev *sunspec.Device) domain.PublishDiscoveryRequest {
	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors := domain.BridgeSensors(bridgeDevice)

	device := domain.SunSpecDevice(deviceId, dev)
	device.ViaDevice = bridgeDevice.Id
	sensors = append(sensors, domain.DeviceSensors(device, deviceId, dev)...)

	return domain.PublishDiscoveryRequest{
		Sensors: sensors,
		Buttons: []domain.GenericButton{domain.RefreshButton(bridgeDevice)},
	}
}

func datasetSignature(dev *sunspec.Device) string {
	if dev == nil {
		return ""
	}
	keys := make([]string, 0, len(dev.Datasets))
	for _, ds := range dev.Datasets {
		keys = append(keys, ds.Key())
	}
	return strings.Join(keys, ",")
}
