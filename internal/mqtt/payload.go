package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
)

type ValueMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

type deviceInfo struct {
	Manufacturer string    `json:"manufacturer"`
	Model        string    `json:"model"`
	Options      string    `json:"options,omitempty"`
	Version      string    `json:"version"`
	SerialNumber string    `json:"serial_number"`
	Models       []string  `json:"models"`
	Timestamp    time.Time `json:"timestamp"`
}

// RenderValue formats v as an MQTT payload: the scaled decimal for numbers,
// the symbol name for enums, comma separated bit names for bitfields and the
// trimmed text for strings. Values that are not implemented, pads and scale
// factors are not rendered.
func RenderValue(ds *sunspec.Dataset, v sunspec.Value) (string, bool) {
	if v.Meta != sunspec.MetaOk {
		return "", false
	}
	switch v.Spec.Type {
	case sunspec.TypePad, sunspec.TypeScaleFactor, sunspec.TypeUndefined:
		return "", false
	}

	if symbols, ok := ds.Symbols(v); ok {
		names := make([]string, len(symbols))
		for i, s := range symbols {
			names[i] = s.Name
		}
		return strings.Join(names, ","), true
	}
	if sunspec.IsSymbolic(v.Spec.Type) {
		raw, ok := v.Uint()
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%d", raw), true
	}
	if text, ok := v.Text(); ok {
		return strings.TrimSpace(strings.TrimRight(text, "\x00")), true
	}
	if d, ok := v.Scaled(); ok {
		return d.String(), true
	}
	return "", false
}

// DeviceMessages renders every publishable value of dev below
// <base>/<deviceId>/<dataset>/<point>, plus a retained JSON summary on
// <base>/<deviceId>/device.
func DeviceMessages(client *MQTTClient, deviceId string, dev *sunspec.Device) ([]ValueMessage, error) {
	info := deviceInfo{
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
		Options:      dev.Options,
		Version:      dev.Version,
		SerialNumber: dev.SerialNumber,
		Models:       []string{},
		Timestamp:    dev.Timestamp,
	}

	var msgs []ValueMessage
	for _, ds := range dev.Datasets {
		key := ds.Key()
		info.Models = append(info.Models, key)
		for _, v := range ds.Values {
			payload, ok := RenderValue(ds, v)
			if !ok {
				continue
			}
			msgs = append(msgs, ValueMessage{
				Topic:   client.StateTopic(fmt.Sprintf("%s/%s/%s", deviceId, key, domain.PointTopicName(v))),
				Payload: payload,
			})
		}
	}

	summary, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, ValueMessage{
		Topic:   client.StateTopic(fmt.Sprintf("%s/device", deviceId)),
		Payload: string(summary),
		Retain:  true,
	})
	return msgs, nil
}
