package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pin(n int) *int { return &n }

func validConfig() Config {
	cfg := defaults()
	cfg.Temperature.SensorPath = "/sys/bus/w1/devices/28-000000000001"
	cfg.GPIO.PumpRelay = pin(17)
	cfg.GPIO.FlowMeter = pin(27)
	return cfg
}

func TestValidate_GPIOValid(t *testing.T) {
	cfg := validConfig()
	assert.NotPanics(t, cfg.validate)
}

func TestValidate_GPIOMissing(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.FlowMeter = nil

	assert.PanicsWithValue(t, "Missing required GPIO config fields: gpio.flow_meter", cfg.validate)
}

func TestValidate_GPIOConflict(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.FlowMeter = pin(17)

	assert.PanicsWithValue(t, "Conflicting GPIO pins: gpio.flow_meter and gpio.pump_relay both use pin 17", cfg.validate)
}

func TestValidate_SimulateSkipsHardware(t *testing.T) {
	cfg := defaults()
	cfg.Simulate = true
	assert.NotPanics(t, cfg.validate)
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick interval", func(c *Config) { c.TickIntervalMs = 0 }},
		{"negative hysteresis", func(c *Config) { c.Pump.FreezeHysteresis = -0.5 }},
		{"inverted clamp", func(c *Config) { c.Temperature.MinC = 50; c.Temperature.MaxC = 10 }},
		{"port out of range", func(c *Config) { c.APIPort = 70000 }},
		{"missing sensor path", func(c *Config) { c.Temperature.SensorPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Panics(t, cfg.validate)
		})
	}
}

func TestFromFile_KeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{
		"simulate": true,
		"tick_interval_ms": 250,
		"pump": {"freeze_threshold": 2.0, "on_duration": 120},
		"mqtt": {"broker": "tcp://localhost:1883"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg := FromFile(path)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 250, cfg.TickIntervalMs)
	assert.Equal(t, 2.0, cfg.Pump.FreezeThreshold)
	assert.Equal(t, uint32(120), cfg.Pump.OnDuration)
	assert.Equal(t, uint32(600), cfg.Pump.OffDuration)
	assert.Equal(t, 0.5, cfg.Pump.FreezeHysteresis)
	assert.True(t, cfg.Pump.EnablePump)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "enclosure/pump", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
}

func TestFromFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pump": `), 0644))

	assert.Panics(t, func() { FromFile(path) })
}

func TestFromFile_Missing(t *testing.T) {
	assert.Panics(t, func() { FromFile(filepath.Join(t.TempDir(), "nope.json")) })
}
