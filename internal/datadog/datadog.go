package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

// Client is the subset of the DogStatsD client used here.
type Client interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
}

// Metrics emits pump gauges every tick and counts transitions and faults.
type Metrics struct {
	client Client
	log    zerolog.Logger
}

// New connects to the agent. A failed connection leaves a Metrics that
// drops everything.
func New(addr, namespace string, tags []string, log zerolog.Logger) *Metrics {
	dogstatsd, err := statsd.New(addr, statsd.WithNamespace(namespace), statsd.WithTags(tags))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return &Metrics{log: log}
	}

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")

	return &Metrics{client: dogstatsd, log: log}
}

func NewWithClient(c Client, log zerolog.Logger) *Metrics {
	return &Metrics{client: c, log: log}
}

func (m *Metrics) Observe(state pump.State) {
	m.gauge("temperature", state.CurrentTemperature)
	m.gauge("flow_rate", state.FlowRate)
	m.gauge("total_gallons", state.TotalGallons)
	m.gauge("active", boolValue(state.IsActive))
	m.gauge("enabled", boolValue(state.IsEnabled))
	m.gauge("fault", boolValue(state.FaultDetected))
	m.gauge("on_time", float64(state.OnTime))
	m.gauge("off_time", float64(state.OffTime))
	m.gauge("cycle_count", float64(state.CycleCount))
}

func (m *Metrics) StateChanged(state pump.State, wasActive bool) {
	if state.IsActive {
		m.incr("starts")
	} else {
		m.incr("stops")
	}
}

func (m *Metrics) FaultRaised(kind pump.FaultKind, state pump.State) {
	m.incr("faults", "fault:"+kind.Code())
}

func (m *Metrics) gauge(name string, value float64, tags ...string) {
	if m.client == nil {
		return
	}
	if err := m.client.Gauge(name, value, tags, 1); err != nil {
		m.log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (m *Metrics) incr(name string, tags ...string) {
	if m.client == nil {
		return
	}
	if err := m.client.Incr(name, tags, 1); err != nil {
		m.log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
