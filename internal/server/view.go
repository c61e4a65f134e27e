package server

import (
	"time"

	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	"github.com/berfenger/sunspec2mqtt/internal/mqtt"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
)

type DeviceView struct {
	Id           string        `json:"id"`
	Manufacturer string        `json:"manufacturer"`
	Model        string        `json:"model"`
	Options      string        `json:"options,omitempty"`
	Version      string        `json:"version"`
	SerialNumber string        `json:"serial_number"`
	Timestamp    time.Time     `json:"timestamp"`
	Datasets     []DatasetView `json:"datasets"`
}

type DatasetView struct {
	Key    string      `json:"key"`
	Did    uint16      `json:"did"`
	Points []PointView `json:"points"`
}

type PointView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Units string `json:"units,omitempty"`
}

// NewDeviceView renders dev the way its values are published over MQTT.
func NewDeviceView(deviceId string, dev *sunspec.Device) DeviceView {
	view := DeviceView{
		Id:           deviceId,
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
		Options:      dev.Options,
		Version:      dev.Version,
		SerialNumber: dev.SerialNumber,
		Timestamp:    dev.Timestamp,
		Datasets:     make([]DatasetView, 0, len(dev.Datasets)),
	}
	for _, ds := range dev.Datasets {
		dsView := DatasetView{Key: ds.Key(), Points: []PointView{}}
		if ds.Did != nil {
			dsView.Did = ds.Did.Did
		}
		for _, v := range ds.Values {
			payload, ok := mqtt.RenderValue(ds, v)
			if !ok {
				continue
			}
			dsView.Points = append(dsView.Points, PointView{
				Name:  domain.PointTopicName(v),
				Value: payload,
				Units: v.Units,
			})
		}
		view.Datasets = append(view.Datasets, dsView)
	}
	return view
}
