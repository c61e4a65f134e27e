package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec_modbus"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Modbus   ModbusConfig  `mapstructure:"modbus"`
	Reader   ReaderConfig  `mapstructure:"reader"`
	Models   ModelsConfig  `mapstructure:"models"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Monitor  MonitorConfig `mapstructure:"monitor"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
}

type ModbusConfig struct {
	Driver        string
	URL           string `mapstructure:"url"`
	Host          string
	Port          uint
	SerialDevice  string `mapstructure:"serial_device"`
	BaudRate      uint   `mapstructure:"baud_rate"`
	UnitId        uint8  `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type ReaderConfig struct {
	SignatureAddresses  []uint32 `mapstructure:"signature_addresses"`
	Retries             int
	MaxRegistersPerRead uint16 `mapstructure:"max_registers_per_read"`
}

type ModelsConfig struct {
	SearchPath     string `mapstructure:"search_path"`
	DisableBuiltin bool   `mapstructure:"disable_builtin"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	ReadTimeoutMillis  uint32 `mapstructure:"read_timeout_millis"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	DeviceId          string `mapstructure:"device_id"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

// Transport returns the connection settings. An explicit URL wins over the
// serial device, which wins over host and port.
func (c ModbusConfig) Transport() sunspec_modbus.TransportConfig {
	url := c.URL
	if url == "" {
		if c.SerialDevice != "" {
			url = "rtu://" + c.SerialDevice
		} else {
			url = fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
		}
	}
	return sunspec_modbus.TransportConfig{
		URL:      url,
		UnitId:   c.UnitId,
		Timeout:  time.Duration(c.TimeoutMillis) * time.Millisecond,
		BaudRate: c.BaudRate,
	}
}

func (c ReaderConfig) DeviceReader() sunspec_modbus.ReaderConfig {
	return sunspec_modbus.ReaderConfig{
		SignatureAddresses:  c.SignatureAddresses,
		Retries:             c.Retries,
		MaxRegistersPerRead: c.MaxRegistersPerRead,
	}
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c MonitorConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMillis) * time.Millisecond
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and normalises MQTT topics in place. It returns the
// first violation found.
func (cfg *Config) Validate() error {

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if cfg.MQTT.DeviceId != "" {
		deviceId, err := CheckMQTTTopic(cfg.MQTT.DeviceId)
		if err != nil {
			return errors.New("invalid mqtt.device_id. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.DeviceId = deviceId
	}

	// check bounds
	switch cfg.Modbus.Driver {
	case "", sunspec_modbus.DriverSimonvetter, sunspec_modbus.DriverGoburrow:
	default:
		return fmt.Errorf("config param modbus.driver %q is not supported", cfg.Modbus.Driver)
	}
	if cfg.Modbus.TimeoutMillis == 0 {
		return errors.New("config param modbus.timeout_millis should be > 0")
	}
	if cfg.Reader.MaxRegistersPerRead < 1 || cfg.Reader.MaxRegistersPerRead > 125 {
		return errors.New("config param reader.max_registers_per_read should be in 1..125")
	}
	if cfg.Reader.Retries < 1 {
		return errors.New("config param reader.retries should be >= 1")
	}
	if len(cfg.Reader.SignatureAddresses) == 0 {
		return errors.New("config param reader.signature_addresses should not be empty")
	}
	if cfg.Monitor.PollIntervalMillis < 1000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.Monitor.ReadTimeoutMillis == 0 {
		return errors.New("config param monitor.read_timeout_millis should be > 0")
	}

	return nil
}
