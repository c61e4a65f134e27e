package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	"github.com/berfenger/sunspec2mqtt/internal/util/actorutil"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type SessionProvider func() (sunspec_modbus.Session, error)

type ReaderActor struct {
	behavior        actor.Behavior
	stash           *actorutil.Stash
	sessionProvider SessionProvider
	session         sunspec_modbus.Session
	reader          *sunspec_modbus.DeviceReader
	dids            *sunspec.DidTable
	readerConfig    sunspec_modbus.ReaderConfig
	diag            sunspec.Diagnostics
	readTimeout     time.Duration
	lastErr         error
	logger          *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewReaderActor(sessionProvider SessionProvider, dids *sunspec.DidTable, readerConfig sunspec_modbus.ReaderConfig,
	diag sunspec.Diagnostics, readTimeout time.Duration, logger *zap.Logger) *ReaderActor {
	act := &ReaderActor{
		sessionProvider: sessionProvider,
		dids:            dids,
		readerConfig:    readerConfig,
		diag:            diag,
		readTimeout:     readTimeout,
		behavior:        actor.NewBehavior(),
		stash:           &actorutil.Stash{},
		logger:          actorutil.ActorLogger(domain.ACTOR_ID_READER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ReaderActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ReaderActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("reader@starting started")
		session, err := state.sessionProvider()
		if err != nil {
			panic(err)
		}
		if err := session.Open(); err != nil {
			panic(err)
		}
		state.session = session
		state.reader = sunspec_modbus.NewDeviceReader(session, state.dids, state.readerConfig, state.diag, state.logger)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("reader@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ReaderActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("reader@default ActorHealthRequest")
		ctx.Respond(state.health())
	case domain.ReadDeviceRequest:
		state.logger.Debug("reader@default ReadDeviceRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskWithDeadline(ctx, state.readTimeout, state.readDevice),
			mapTaskResult[domain.ReadDeviceResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadDeviceResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Restarting, *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("reader@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ReaderActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("reader@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if resp, ok := msg.message.(domain.ReadDeviceResponse); ok {
			state.lastErr = resp.GetResponseError()
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		// answered while a read is in flight
		ctx.Respond(state.health())
	case *actor.Restarting, *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("reader@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ReaderActor) readDevice(ctx context.Context) (*domain.ReadDeviceResponse, error) {
	start := time.Now()
	dev, err := state.reader.ReadDevice(ctx)
	if err != nil {
		state.logger.Warn("reader: device read failed", zap.Error(err), zap.Int("datasets", len(dev.Datasets)))
	}
	return &domain.ReadDeviceResponse{
		ActorResponseMixIn: domain.ErrorResponse(err),
		Device:             dev,
		Duration:           time.Since(start),
	}, nil
}

func (state *ReaderActor) health() domain.ActorHealthResponse {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_READER,
		Healthy: state.lastErr == nil,
		State:   "idle",
	}
	if state.lastErr != nil {
		resp.State = state.lastErr.Error()
	}
	return resp
}

func (state *ReaderActor) close() {
	if state.session != nil {
		if err := state.session.Close(); err != nil {
			state.logger.Debug("reader: close session", zap.Error(err))
		}
		state.session = nil
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
