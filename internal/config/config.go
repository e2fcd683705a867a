package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	Primary       PrimaryConfig       `mapstructure:"primary"`
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	Meter         MeterConfig         `mapstructure:"meter"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	MonitorConfig MonitorConfig       `mapstructure:"monitor"`
	Port          uint                `mapstructure:"port"`
	HttpLog       bool                `mapstructure:"http_log"`
}

// PrimaryConfig points to the Shelly energy meter polled over Modbus TCP.
type PrimaryConfig struct {
	Address              string
	UnitId               uint8  `mapstructure:"unit_id"`
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`
	TimeoutMillis        uint32 `mapstructure:"timeout_millis"`
	MaxConsecutiveErrors uint32 `mapstructure:"max_consecutive_errors"`
}

type HomeAssistantConfig struct {
	URL                string `mapstructure:"url"`
	Token              string
	ImportSensor       string `mapstructure:"import_sensor"`
	ExportSensor       string `mapstructure:"export_sensor"`
	Smooth             bool
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	TimeoutMillis      uint32 `mapstructure:"timeout_millis"`
}

// MeterConfig configures the emulated smart meter Modbus server.
type MeterConfig struct {
	Listen         string
	MaxClients     uint `mapstructure:"max_clients"`
	TimeoutSeconds uint `mapstructure:"timeout_seconds"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c PrimaryConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c PrimaryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c HomeAssistantConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c HomeAssistantConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// HasSensors reports whether any Home Assistant sensor is configured.
func (c HomeAssistantConfig) HasSensors() bool {
	return c.ImportSensor != "" || c.ExportSensor != ""
}

func (c MQTTConfig) Enabled() bool {
	return c.Host != ""
}

// Validate checks bounds and normalizes MQTT topics in place.
func (c *Config) Validate() error {
	if c.Primary.Address == "" {
		return errors.New("config param primary.address (SHELLY_MODBUS) is required")
	}
	if _, _, err := net.SplitHostPort(c.Primary.Address); err != nil {
		return fmt.Errorf("config param primary.address should be host:port: %w", err)
	}
	if c.Primary.PollIntervalMillis < 100 {
		return errors.New("config param primary.poll_interval_millis should be >= 100")
	}
	if c.Primary.MaxConsecutiveErrors < 1 {
		return errors.New("config param primary.max_consecutive_errors should be >= 1")
	}
	if c.HomeAssistant.PollIntervalMillis < 100 {
		return errors.New("config param homeassistant.poll_interval_millis should be >= 100")
	}
	if c.HomeAssistant.HasSensors() && c.HomeAssistant.URL == "" {
		return errors.New("config param homeassistant.url (HA_URL) is required when sensors are configured")
	}
	if !strings.HasPrefix(c.Meter.Listen, "tcp://") {
		return errors.New("config param meter.listen should look like tcp://host:port")
	}
	if c.MonitorConfig.PollIntervalMillis < 1000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadBaseTopic
	return nil
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

// ParseLogLevel maps a textual level to zap, defaulting to info.
func ParseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zapcore.DebugLevel
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn":
		return zapcore.WarnLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseBool accepts "true" in any letter case. Everything else is false.
func ParseBool(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}
