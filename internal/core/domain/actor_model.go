package domain

import (
	"errors"
	"time"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_READER       = "reader"
	ACTOR_ID_MONITOR      = "monitor"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

var ErrNoDevice = errors.New("no device has been read yet")

// ReadDeviceRequest asks the reader for a full walk of the device.
type ReadDeviceRequest struct {
	ActorRequestMixIn
}

// ReadDeviceResponse carries the device even when ResponseError is set: it
// then holds the datasets decoded before the failure.
type ReadDeviceResponse struct {
	ActorResponseMixIn
	Device   *sunspec.Device
	Duration time.Duration
}

type GetDeviceRequest struct {
	ActorRequestMixIn
}

type GetDeviceResponse struct {
	ActorResponseMixIn
	Device   *sunspec.Device
	DeviceId string
}

// RefreshRequest triggers an immediate poll.
type RefreshRequest struct {
	ActorRequestMixIn
}

type PublishDeviceRequest struct {
	ActorRequestMixIn
	DeviceId string
	Device   *sunspec.Device
}

type PublishDeviceResponse struct {
	ActorResponseMixIn
	Published int
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
