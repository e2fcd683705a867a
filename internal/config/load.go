package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "frostmeter"

// legacy environment variables of the standalone bridge
var legacyEnv = map[string]string{
	"primary.address":             "SHELLY_MODBUS",
	"homeassistant.url":           "HA_URL",
	"homeassistant.token":         "HA_TOKEN",
	"homeassistant.import_sensor": "HA_EXTRA_IMPORT",
	"homeassistant.export_sensor": "HA_EXTRA_EXPORT",
	"port":                        "PORT",
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("primary.address", "")
	v.SetDefault("primary.unit_id", 1)
	v.SetDefault("primary.poll_interval_millis", 500)
	v.SetDefault("primary.timeout_millis", 1000)
	v.SetDefault("primary.max_consecutive_errors", 10)
	v.SetDefault("homeassistant.url", "")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("homeassistant.import_sensor", "")
	v.SetDefault("homeassistant.export_sensor", "")
	v.SetDefault("homeassistant.smooth", false)
	v.SetDefault("homeassistant.poll_interval_millis", 1000)
	v.SetDefault("homeassistant.timeout_millis", 2000)
	v.SetDefault("meter.listen", "tcp://0.0.0.0:5502")
	v.SetDefault("meter.max_clients", 5)
	v.SetDefault("meter.timeout_seconds", 30)
	v.SetDefault("monitor.poll_interval_millis", 5000)
	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "frostmeter")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
}

// Load reads defaults, the optional file named by CONFIG_FILE and the
// environment, then validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := strings.ToUpper(ENV_PREFIX + "_" + strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, err
		}
	}
	// HA_SMOOTH only accepts "true"
	if smooth, ok := os.LookupEnv("HA_SMOOTH"); ok {
		v.Set("homeassistant.smooth", ParseBool(smooth))
	}

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.HomeAssistant.Token != "" {
		c.HomeAssistant.Token = "*redacted*"
	}
	if c.MQTT.Username != "" {
		c.MQTT.Username = "*redacted*"
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = "*redacted*"
	}
	return c
}
