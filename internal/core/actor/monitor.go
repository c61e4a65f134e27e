package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/sunspec2mqtt/internal/config"
	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	. "github.com/berfenger/sunspec2mqtt/internal/util/actorutil"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// margin added to the read timeout when waiting for the reader
const readResponseMargin = 5 * time.Second

// ReadObserver is told about every device read.
type ReadObserver interface {
	ObserveRead(dev *sunspec.Device, duration time.Duration, err error)
}

type MonitorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	readerActor *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream
	observer    ReadObserver

	device      *sunspec.Device
	deviceId    string
	lastErr     error
	readStarted time.Time

	logger *zap.Logger
}

type monitorTick struct {
}

func NewMonitorActor(config *config.Config, readerActor *actor.PID, eventStream *eventstream.EventStream, observer ReadObserver, logger *zap.Logger) *MonitorActor {
	act := &MonitorActor{
		config:      config,
		readerActor: readerActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_MONITOR, logger),
		eventStream: eventStream,
		observer:    observer,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// first poll right away
		ctx.Send(ctx.Self(), monitorTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("monitor@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default: ActorHealthRequest")
		ctx.Respond(state.health())
	case domain.GetDeviceRequest:
		state.respondDevice(ctx, msg)
	case monitorTick:
		state.logger.Debug("monitor@default tick")
		state.scheduler.RequestOnce(state.config.Monitor.PollInterval(), ctx.Self(), monitorTick{})
		state.requestRead(ctx)
	case domain.RefreshRequest:
		state.logger.Debug("monitor@default refresh")
		state.requestRead(ctx)
	default:
		state.logger.Debug("monitor@default: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MonitorActor) WaitingReadReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadDeviceResponse:
		state.onReadResponse(msg)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case monitorTick:
		// keep the schedule, skip the overlapping poll
		state.logger.Debug("monitor@waiting tick skipped")
		state.scheduler.RequestOnce(state.config.Monitor.PollInterval(), ctx.Self(), monitorTick{})
	case domain.RefreshRequest:
		state.logger.Debug("monitor@waiting refresh skipped")
	case domain.ActorHealthRequest:
		ctx.Respond(state.health())
	case domain.GetDeviceRequest:
		state.respondDevice(ctx, msg)
	default:
		state.logger.Debug("monitor@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) requestRead(ctx actor.Context) {
	timeout := state.config.Monitor.ReadTimeout() + readResponseMargin
	state.readStarted = time.Now()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.readerActor, domain.ReadDeviceRequest{}, timeout), func(err error) any {
		return domain.ReadDeviceResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
	state.behavior.BecomeStacked(state.WaitingReadReceive)
}

func (state *MonitorActor) onReadResponse(msg domain.ReadDeviceResponse) {
	if msg.Duration == 0 {
		// the reader never answered, or answered without timing
		msg.Duration = time.Since(state.readStarted)
	}
	if state.observer != nil {
		state.observer.ObserveRead(msg.Device, msg.Duration, msg.GetResponseError())
	}
	state.lastErr = msg.GetResponseError()
	if msg.HasResponseError() {
		datasets := 0
		if msg.Device != nil {
			datasets = len(msg.Device.Datasets)
		}
		state.logger.Error("monitor@waiting ReadDeviceResponse error", zap.Error(msg.GetResponseError()), zap.Int("datasets", datasets))
		return
	}
	state.device = msg.Device
	state.deviceId = domain.DeviceTopicId(state.config.MQTT.DeviceId, msg.Device)
	state.logger.Debug("monitor@waiting ReadDeviceResponse", zap.String("device", state.deviceId),
		zap.Int("datasets", len(msg.Device.Datasets)), zap.Duration("duration", msg.Duration))
	if state.eventStream != nil {
		state.eventStream.Publish(domain.DeviceUpdateEvent{
			UpdateEventMixIn: domain.UpdateEventMixIn{Id: state.deviceId},
			Device:           msg.Device,
		})
	}
}

func (state *MonitorActor) respondDevice(ctx actor.Context, req domain.GetDeviceRequest) {
	resp := domain.GetDeviceResponse{Device: state.device, DeviceId: state.deviceId}
	if state.device == nil {
		resp.ResponseError = domain.ErrNoDevice
		if state.lastErr != nil {
			resp.ResponseError = fmt.Errorf("%w: %w", domain.ErrNoDevice, state.lastErr)
		}
	}
	ForRequest(req).Respond(ctx, resp)
}

func (state *MonitorActor) health() domain.ActorHealthResponse {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MONITOR,
		Healthy: state.lastErr == nil,
		State:   "idle",
	}
	if state.lastErr != nil {
		resp.State = state.lastErr.Error()
	}
	return resp
}
