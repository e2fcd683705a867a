package util

import (
	"fmt"
	"net"
	"testing"

	"frostmeter/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Primary: config.PrimaryConfig{
			Address:              "127.0.0.1:502",
			UnitId:               1,
			PollIntervalMillis:   500,
			TimeoutMillis:        1000,
			MaxConsecutiveErrors: 10,
		},
		HomeAssistant: config.HomeAssistantConfig{
			PollIntervalMillis: 1000,
			TimeoutMillis:      2000,
		},
		Meter: config.MeterConfig{
			Listen:         "tcp://127.0.0.1:5502",
			MaxClients:     5,
			TimeoutSeconds: 30,
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 5000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "frostmeter",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}

// FreeTCPAddress returns a loopback host:port that was free when probed.
func FreeTCPAddress(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not find a free port: %v", err)
	}
	defer l.Close()
	return fmt.Sprintf("127.0.0.1:%d", l.Addr().(*net.TCPAddr).Port)
}
