package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/sunspec2mqtt/internal/core/domain"
	"github.com/berfenger/sunspec2mqtt/internal/util"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset() *sunspec.Dataset {
	m := &sunspec.Model{
		Name: "inverter",
		Defines: []sunspec.Define{
			{Name: "St", Symbols: []sunspec.Symbol{{Name: "OFF", Value: 1}, {Name: "MPPT", Value: 4}}},
			{Name: "Evt1", Symbols: []sunspec.Symbol{{Name: "GROUND_FAULT", Value: 0}, {Name: "DC_OVER_VOLT", Value: 1}, {Name: "AC_DISCONNECT", Value: 2}}},
		},
	}
	return &sunspec.Dataset{Did: m.AddDid(101, "inverter"), Values: []sunspec.Value{
		{Name: "W", Spec: sunspec.RefSpec(sunspec.TypeInt16, "W_SF"), Meta: sunspec.MetaOk, Payload: sunspec.I16(1500), Scale: -1, Units: "W"},
		{Name: "W_SF", Spec: sunspec.Spec(sunspec.TypeScaleFactor), Meta: sunspec.MetaOk, Payload: sunspec.I16(-1)},
		{Name: "WH", Spec: sunspec.Spec(sunspec.TypeAcc32), Meta: sunspec.MetaOk, Payload: sunspec.U32(70000), Units: "Wh"},
		{Name: "A", Spec: sunspec.Spec(sunspec.TypeUInt16), Meta: sunspec.MetaNotImplemented, Payload: sunspec.U16(0xffff), Units: "A"},
		{Name: "St", Spec: sunspec.RefSpec(sunspec.TypeEnum16, "St"), Meta: sunspec.MetaOk, Payload: sunspec.U16(4)},
		{Name: "Evt1", Spec: sunspec.RefSpec(sunspec.TypeBitfield32, "Evt1"), Meta: sunspec.MetaOk, Payload: sunspec.U32(0b101)},
		{Name: "StVnd", Spec: sunspec.Spec(sunspec.TypeEnum16), Meta: sunspec.MetaOk, Payload: sunspec.U16(7)},
		{Name: "Vr", Spec: sunspec.StringSpec(4), Meta: sunspec.MetaOk, Payload: sunspec.Str("1.2 \x00\x00")},
		{Name: "DCW", Spec: sunspec.ScaledSpec(sunspec.TypeUInt16, 2), Meta: sunspec.MetaOk, Payload: sunspec.U16(12), Scale: 2, Units: "W", Index: 3},
	}}
}

func TestRenderValue(t *testing.T) {

	ds := testDataset()
	expected := map[string]string{
		"W":     "150",
		"WH":    "70000",
		"St":    "MPPT",
		"Evt1":  "GROUND_FAULT,AC_DISCONNECT",
		"StVnd": "7",
		"Vr":    "1.2",
		"DCW":   "1200",
	}
	for _, v := range ds.Values {
		t.Run(v.Name, func(t *testing.T) {
			payload, ok := RenderValue(ds, v)
			want, published := expected[v.Name]
			assert.Equal(t, published, ok)
			if published {
				assert.Equal(t, want, payload)
			}
		})
	}
}

func TestDeviceMessages(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	dev := sunspec.NewDevice()
	dev.Manufacturer = "ACME"
	dev.SerialNumber = "0042"
	dev.AddDataset(testDataset())

	msgs, err := DeviceMessages(client, "acme_0042", dev)
	require.NoError(t, err)

	topics := map[string]string{}
	for _, m := range msgs {
		topics[m.Topic] = m.Payload
	}
	assert.Len(msgs, 8)
	assert.Equal("150", topics["sunspec/acme_0042/inverter/W"])
	assert.Equal("1200", topics["sunspec/acme_0042/inverter/DCW_03"])
	assert.NotContains(topics, "sunspec/acme_0042/inverter/A")
	assert.NotContains(topics, "sunspec/acme_0042/inverter/W_SF")

	last := msgs[len(msgs)-1]
	assert.Equal("sunspec/acme_0042/device", last.Topic)
	assert.True(last.Retain)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Payload), &info))
	assert.Equal("ACME", info["manufacturer"])
	assert.Equal([]any{"inverter"}, info["models"])
}

func TestHADiscoveryMessages(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	bridge := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	bridgeSensor := domain.BridgeSensors(bridge)[0]
	msg := GenericSensorToHADiscoveryMessage(client, bridgeSensor)
	assert.Equal("sunspec/bridge/state", msg.StateTopic)
	assert.Equal("", msg.AvTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal("homeassistant/binary_sensor/"+bridge.Id+"/bridge/config", HADiscoverySensorTopic(client.DiscoveryPrefix(), bridgeSensor))

	dev := sunspec.NewDevice()
	dev.AddDataset(testDataset())
	sensors := domain.DeviceSensors(domain.SunSpecDevice("dev", dev), "dev", dev)
	require.NotEmpty(t, sensors)
	msg = GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal("sunspec/dev/inverter/W", msg.StateTopic)
	assert.Equal("sunspec/bridge/state", msg.AvTopic)
	assert.Equal(domain.DEVICE_CLASS_POWER, msg.DeviceClass)
	assert.Equal("mqtt", msg.Platform)

	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(string(payload), `"identifiers":["`+sensors[0].Device.Id+`"]`)
	assert.NotContains(string(payload), "payload_on")

	button := GenericButtonToHADiscoveryMessage(client, domain.RefreshButton(bridge))
	assert.Equal("sunspec/command/refresh", button.CommandTopic)
	assert.Equal(MQTT_PAYLOAD_PRESS, button.PayloadPress)
	assert.Equal("homeassistant/button/"+bridge.Id+"/refresh/config", HADiscoveryButtonTopic("homeassistant", domain.RefreshButton(bridge)))
}
