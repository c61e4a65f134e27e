package domain

import (
	"fmt"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
)

type UpdateEventMixIn struct {
	Id string
}

type UpdateEvent interface {
	UpdateEvent() string
	EventId() string
}

func (e UpdateEventMixIn) UpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e UpdateEventMixIn) EventId() string {
	return e.Id
}

// DeviceUpdateEvent is published after every successful read. Id is the
// device id used in topics.
type DeviceUpdateEvent struct {
	UpdateEventMixIn
	Device *sunspec.Device
}
