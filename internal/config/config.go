package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

type GPIO struct {
	Chip            string `json:"chip"`
	RelayActiveHigh bool   `json:"relay_active_high"`

	PumpRelay *int `json:"pump_relay"`
	FlowMeter *int `json:"flow_meter"`
}

type Temperature struct {
	SensorPath string  `json:"sensor_path"` // 1-wire device directory
	MinC       float64 `json:"min_c"`
	MaxC       float64 `json:"max_c"`
	Retries    int     `json:"retries"`

	PollSeconds  int     `json:"poll_seconds"`
	MaxDeltaC    float64 `json:"max_delta_c"` // larger jumps between polls are anomalies
	MaxAnomalies int     `json:"max_anomalies"`
}

type MQTT struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	MaxRetries  int    `json:"max_retries"`

	StatusIntervalSeconds int `json:"status_interval_seconds"`
}

type Influx struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

type Datadog struct {
	Enabled   bool     `json:"enabled"`
	AgentAddr string   `json:"agent_addr"`
	Namespace string   `json:"namespace"`
	Tags      []string `json:"tags"`
}

type Ntfy struct {
	Server             string `json:"server"`
	Topic              string `json:"topic"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	MaxRetries         int    `json:"max_retries"`
	BreakerFailures    int    `json:"breaker_failures"`
	BreakerOpenSeconds int    `json:"breaker_open_seconds"`
}

type Simulation struct {
	Temperature     float64 `json:"temperature_c"`
	TemperatureStep float64 `json:"temperature_step_c"` // applied every tick
	Jitter          float64 `json:"jitter_c"`
	PulsesPerSecond float64 `json:"pulses_per_second"`
	Seed            int64   `json:"seed"`
}

type Config struct {
	ConfigFile string        `json:"-"`
	LogLevel   zerolog.Level `json:"-"`

	LogFile        string `json:"log_file"`
	DBPath         string `json:"db_path"`
	SettingsFile   string `json:"settings_file"`
	RetentionDays  int    `json:"event_retention_days"`
	FlushEvery     int    `json:"stats_flush_ticks"`
	TickIntervalMs int    `json:"tick_interval_ms"`
	APIPort        int    `json:"api_port"`
	Simulate       bool   `json:"simulate"`

	Pump        pump.Config `json:"pump"`
	GPIO        GPIO        `json:"gpio"`
	Temperature Temperature `json:"temperature"`
	Simulation  Simulation  `json:"simulation"`
	MQTT        MQTT        `json:"mqtt"`
	Influx      Influx      `json:"influx"`
	Datadog     Datadog     `json:"datadog"`
	Ntfy        Ntfy        `json:"ntfy"`
}

func Load() Config {
	var configFile, logLevel string
	var simulate bool

	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&simulate, "simulate", false, "Run against simulated sensors and relay")
	flag.Parse()

	cfg := FromFile(configFile)
	cfg.LogLevel = parseLogLevel(logLevel)
	if simulate {
		cfg.Simulate = true
	}
	return cfg
}

// FromFile decodes the JSON config at path over the defaults and panics if
// the result is unusable.
func FromFile(path string) Config {
	file, err := os.Open(path)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	cfg := defaults()
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}
	cfg.ConfigFile = path

	cfg.validate()
	return cfg
}

func defaults() Config {
	return Config{
		LogLevel:       zerolog.InfoLevel,
		LogFile:        "/var/log/pump-controller.log",
		DBPath:         "data/pump.db",
		SettingsFile:   "data/settings.json",
		RetentionDays:  90,
		FlushEvery:     60,
		TickIntervalMs: 1000,
		APIPort:        8080,
		Pump:           pump.DefaultConfig(),
		GPIO: GPIO{
			Chip: "gpiochip0",
		},
		Temperature: Temperature{
			MinC:         -55,
			MaxC:         125,
			Retries:      2,
			PollSeconds:  5,
			MaxDeltaC:    5,
			MaxAnomalies: 6,
		},
		Simulation: Simulation{
			Temperature:     20,
			PulsesPerSecond: 10,
		},
		MQTT: MQTT{
			ClientID:    "pump-controller",
			TopicPrefix: "enclosure/pump",
			MaxRetries:  5,

			StatusIntervalSeconds: 30,
		},
		Datadog: Datadog{
			AgentAddr: "127.0.0.1:8125",
			Namespace: "pump.",
		},
		Ntfy: Ntfy{
			Server:             "https://ntfy.sh",
			TimeoutSeconds:     10,
			MaxRetries:         3,
			BreakerFailures:    5,
			BreakerOpenSeconds: 60,
		},
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.TickIntervalMs <= 0 {
		problems = append(problems, fmt.Sprintf("tick_interval_ms must be positive, got %d", cfg.TickIntervalMs))
	}
	if cfg.Pump.FreezeHysteresis < 0 {
		problems = append(problems, fmt.Sprintf("pump.freeze_hysteresis must not be negative, got %.2f", cfg.Pump.FreezeHysteresis))
	}
	if cfg.Temperature.MinC >= cfg.Temperature.MaxC {
		problems = append(problems, fmt.Sprintf("temperature.min_c (%.1f) must be below temperature.max_c (%.1f)", cfg.Temperature.MinC, cfg.Temperature.MaxC))
	}
	if cfg.Temperature.PollSeconds <= 0 {
		problems = append(problems, fmt.Sprintf("temperature.poll_seconds must be positive, got %d", cfg.Temperature.PollSeconds))
	}
	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("api_port out of range: %d", cfg.APIPort))
	}
	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}

	// simulated runs never touch the GPIO chip
	if cfg.Simulate {
		return
	}

	if cfg.Temperature.SensorPath == "" {
		panic("Missing required config field: temperature.sensor_path")
	}

	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
	)

	v := reflect.ValueOf(cfg.GPIO)
	t := reflect.TypeOf(cfg.GPIO)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() != reflect.Ptr {
			continue
		}
		fieldName := t.Field(i).Tag.Get("json")

		if field.IsNil() {
			missingFields = append(missingFields, "gpio."+fieldName)
			continue
		}

		pin := int(field.Elem().Int())
		if other, exists := usedPins[pin]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", fieldName, other, pin))
		} else {
			usedPins[pin] = fieldName
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required GPIO config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}
}
