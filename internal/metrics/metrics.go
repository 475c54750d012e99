// Package metrics exposes the pump state for Prometheus scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

const namespace = "pump"

type Metrics struct {
	registry *prometheus.Registry

	temperature  prometheus.Gauge
	flowRate     prometheus.Gauge
	totalGallons prometheus.Gauge
	active       prometheus.Gauge
	enabled      prometheus.Gauge
	fault        prometheus.Gauge

	// run statistics can be reset by the operator, so they are gauges
	onTime     prometheus.Gauge
	offTime    prometheus.Gauge
	cycleCount prometheus.Gauge

	transitions *prometheus.CounterVec
	faults      *prometheus.CounterVec
}

func New() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		registry:     prometheus.NewRegistry(),
		temperature:  gauge("water_temperature_celsius", "Last water temperature fed to the controller."),
		flowRate:     gauge("flow_rate_gpm", "Flow rate over the last second in gallons per minute."),
		totalGallons: gauge("total_gallons", "Gallons pumped since the last statistics reset."),
		active:       gauge("active", "1 while the pump output is on."),
		enabled:      gauge("enabled", "1 while the pump is enabled."),
		fault:        gauge("fault", "1 while a fault is latched."),
		onTime:       gauge("on_time_seconds", "Seconds the pump has run since the last statistics reset."),
		offTime:      gauge("off_time_seconds", "Seconds the pump has been off since the last statistics reset."),
		cycleCount:   gauge("cycles", "Off to on transitions since the last statistics reset."),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Pump output transitions by resulting state.",
		}, []string{"to"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Faults raised by kind.",
		}, []string{"fault"}),
	}

	m.registry.MustRegister(
		m.temperature, m.flowRate, m.totalGallons,
		m.active, m.enabled, m.fault,
		m.onTime, m.offTime, m.cycleCount,
		m.transitions, m.faults,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Observe(state pump.State) {
	m.temperature.Set(state.CurrentTemperature)
	m.flowRate.Set(state.FlowRate)
	m.totalGallons.Set(state.TotalGallons)
	m.active.Set(boolValue(state.IsActive))
	m.enabled.Set(boolValue(state.IsEnabled))
	m.fault.Set(boolValue(state.FaultDetected))
	m.onTime.Set(float64(state.OnTime))
	m.offTime.Set(float64(state.OffTime))
	m.cycleCount.Set(float64(state.CycleCount))
}

func (m *Metrics) StateChanged(state pump.State, wasActive bool) {
	to := "off"
	if state.IsActive {
		to = "on"
	}
	m.transitions.WithLabelValues(to).Inc()
	m.active.Set(boolValue(state.IsActive))
}

func (m *Metrics) FaultRaised(kind pump.FaultKind, state pump.State) {
	m.faults.WithLabelValues(kind.Code()).Inc()
	m.fault.Set(1)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
