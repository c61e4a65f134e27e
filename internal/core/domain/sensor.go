package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	BUTTON_ID_REFRESH            = "refresh"
	COMMAND_REFRESH              = "refresh"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_APPARENT_POWER  = "apparent_power"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_POWER_FACTOR    = "power_factor"
	DEVICE_CLASS_REACTIVE_POWER  = "reactive_power"
	DEVICE_CLASS_TEMPERATURE     = "temperature"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

// device class and HA unit by SunSpec unit
var unitClasses = map[string]struct {
	deviceClass string
	unit        string
}{
	"W":   {DEVICE_CLASS_POWER, "W"},
	"kW":  {DEVICE_CLASS_POWER, "kW"},
	"Wh":  {DEVICE_CLASS_ENERGY, "Wh"},
	"kWh": {DEVICE_CLASS_ENERGY, "kWh"},
	"VA":  {DEVICE_CLASS_APPARENT_POWER, "VA"},
	"var": {DEVICE_CLASS_REACTIVE_POWER, "var"},
	"VAr": {DEVICE_CLASS_REACTIVE_POWER, "var"},
	"V":   {DEVICE_CLASS_VOLTAGE, "V"},
	"A":   {DEVICE_CLASS_CURRENT, "A"},
	"Hz":  {DEVICE_CLASS_FREQUENCY, "Hz"},
	"C":   {DEVICE_CLASS_TEMPERATURE, "°C"},
	"Pct": {"", "%"},
	"%":   {"", "%"},
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("sunspec_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "sunspec2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SunSpec bridge %s", md5HashShort(baseTopic)),
	}
}

// SunSpecDevice describes the physical device from its common model
// identity. deviceId is the id used in state topics.
func SunSpecDevice(deviceId string, dev *sunspec.Device) Device {
	name := strings.TrimSpace(fmt.Sprintf("%s %s", dev.Manufacturer, dev.Model))
	if name == "" {
		name = deviceId
	}
	return Device{
		Id:           fmt.Sprintf("sunspec_%s", md5HashShort(deviceId+dev.SerialNumber)),
		Name:         name,
		Version:      dev.Version,
		Model:        dev.Model,
		Manufacturer: dev.Manufacturer,
		SerialNumber: dev.SerialNumber,
	}
}

// DeviceTopicId returns the id a device is published under: the configured
// one if any, else the id derived from its identity.
func DeviceTopicId(configured string, dev *sunspec.Device) string {
	if configured != "" {
		return configured
	}
	if id := dev.Id(); strings.Trim(id, "_") != "" {
		return id
	}
	return "device"
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Bridge state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

func RefreshButton(bridgeDevice Device) GenericButton {
	return GenericButton{
		Device:   IdDevice(bridgeDevice),
		Id:       BUTTON_ID_REFRESH,
		Name:     "Refresh",
		UniqueId: uniqueId(bridgeDevice.Id, BUTTON_ID_REFRESH),
		Icon:     "mdi:refresh",
		Command:  COMMAND_REFRESH,
	}
}

// DeviceSensors returns one sensor per decoded value that carries units or
// symbols. Only the first sensor holds the full device description.
func DeviceSensors(device Device, deviceId string, dev *sunspec.Device) []GenericSensor {
	var sensors []GenericSensor
	for _, ds := range dev.Datasets {
		key := ds.Key()
		for _, v := range ds.Values {
			sensor, ok := valueSensor(device, deviceId, key, ds, v)
			if !ok {
				continue
			}
			if len(sensors) > 0 {
				sensor.Device = IdDevice(device)
			}
			sensors = append(sensors, sensor)
		}
	}
	return sensors
}

func valueSensor(device Device, deviceId, key string, ds *sunspec.Dataset, v sunspec.Value) (GenericSensor, bool) {
	t := v.Spec.Type
	if t == sunspec.TypeScaleFactor || t == sunspec.TypePad || v.Meta != sunspec.MetaOk {
		return GenericSensor{}, false
	}
	_, symbolic := ds.Symbols(v)
	if v.Units == "" && !symbolic {
		return GenericSensor{}, false
	}

	point := PointTopicName(v)
	id := sanitizeId(fmt.Sprintf("%s_%s", key, point))
	label := v.Label
	if label == "" {
		label = v.Name
	}
	if v.Index > 0 {
		label = fmt.Sprintf("%s %d", label, v.Index)
	}

	sensor := GenericSensor{
		Device:     device,
		Id:         id,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       fmt.Sprintf("%s %s", key, label),
		UniqueId:   uniqueId(device.Id, id),
		StatePath:  fmt.Sprintf("%s/%s/%s", deviceId, key, point),
	}
	if class, ok := unitClasses[v.Units]; ok {
		sensor.DeviceClass = class.deviceClass
		sensor.UnitOfMeasurement = class.unit
	} else if !symbolic {
		sensor.UnitOfMeasurement = v.Units
	}
	switch {
	case symbolic:
	case sunspec.IsAccumulator(t):
		sensor.StateClass = STATE_CLASS_TOTAL_INCREASING
	case sunspec.IsNumeric(t):
		sensor.StateClass = STATE_CLASS_MEASUREMENT
	}
	if ds.Did != nil && ds.Did.Did == sunspec.CommonModelDid {
		sensor.EntityCategory = ENTITY_CLASS_DIAGNOSTIC
	}
	return sensor, true
}

// PointTopicName renders a value name for use as a topic level: repeated
// values get a two digit suffix.
func PointTopicName(v sunspec.Value) string {
	if v.Index > 0 {
		return fmt.Sprintf("%s_%02d", v.Name, v.Index)
	}
	return v.Name
}

func sanitizeId(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, id)
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
