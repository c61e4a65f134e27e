package util

import (
	"github.com/berfenger/sunspec2mqtt/internal/config"
	"github.com/berfenger/sunspec2mqtt/internal/models"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec_modbus"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Modbus: config.ModbusConfig{
			Host:          "-.-.-.-",
			Port:          502,
			UnitId:        1,
			TimeoutMillis: 2000,
		},
		Reader: config.ReaderConfig{
			SignatureAddresses:  []uint32{1, 40001, 50001, 0x40001},
			Retries:             2,
			MaxRegistersPerRead: 125,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "sunspec",
			HADiscoveryTopic: "homeassistant",
		},
		Monitor: config.MonitorConfig{
			PollIntervalMillis: 5000,
			ReadTimeoutMillis:  10000,
		},
		Port: 8080,
	}
}

// TestDeviceImage returns the builtin model table and a register image at
// 40001 holding a "Fronius" common block and a single phase inverter
// producing 150 W.
func TestDeviceImage() (*sunspec.DidTable, *sunspec_modbus.RegisterMap, error) {
	table, err := models.NewLoader("", false, nil).Load()
	if err != nil {
		return nil, nil, err
	}
	common, _ := table.Lookup(sunspec.CommonModelDid)
	inverter, _ := table.Lookup(101)
	image, err := sunspec_modbus.NewDeviceImage(40001,
		&sunspec.Dataset{Did: common, Values: []sunspec.Value{
			{Name: "Mn", Meta: sunspec.MetaOk, Payload: sunspec.Str("Fronius")},
			{Name: "Md", Meta: sunspec.MetaOk, Payload: sunspec.Str("Symo")},
			{Name: "SN", Meta: sunspec.MetaOk, Payload: sunspec.Str("12345678")},
		}},
		&sunspec.Dataset{Did: inverter, Values: []sunspec.Value{
			{Name: "W", Meta: sunspec.MetaOk, Payload: sunspec.I16(1500)},
			{Name: "W_SF", Meta: sunspec.MetaOk, Payload: sunspec.I16(-1)},
		}},
	)
	if err != nil {
		return nil, nil, err
	}
	return table, image, nil
}
