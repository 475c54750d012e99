// Package flowmeter turns a cumulative pulse counter into a flow rate,
// a running gallons total, and the no-flow / low-flow fault signals the
// pump controller consumes. It is sampled once per simulated second.
package flowmeter

const secondsPerMinute = 60

type Config struct {
	PulsesPerGallon    uint32
	FaultTimeout       uint32 // running seconds without a new pulse, 0 disables
	MinPulsesPerMinute uint32 // 0 disables
}

// Sample is the outcome of a single Tick.
type Sample struct {
	Delta            uint32
	Rate             float64
	MinuteClosed     bool
	InsufficientFlow bool
}

type Meter struct {
	cfg Config

	total        uint32
	lastCount    uint32
	rate         float64
	totalGallons float64

	secondsSinceLastPulse uint32
	pulsesThisMinute      uint32
	secondsInMinute       uint32
	minuteCheckFailed     bool
}

func New(cfg Config) *Meter {
	return &Meter{cfg: cfg}
}

func (m *Meter) SetConfig(cfg Config) {
	m.cfg = cfg
}

func (m *Meter) Config() Config {
	return m.cfg
}

// RecordPulses stores the latest cumulative pulse count. It is consumed on
// the next Tick.
func (m *Meter) RecordPulses(total uint32) {
	m.total = total
}

func (m *Meter) Pulses() uint32 {
	return m.total
}

// Tick advances the meter one second. active reports whether the pump was
// running going into this second. The no-pulse timer and the per-minute
// pulse check only count while it was; an idle second restarts the timer so
// each run starts from zero.
func (m *Meter) Tick(active bool) Sample {
	var delta uint32
	if m.total > m.lastCount {
		delta = m.total - m.lastCount
	}

	if delta > 0 {
		m.secondsSinceLastPulse = 0
		m.pulsesThisMinute += delta
		m.rate = 0
		if m.cfg.PulsesPerGallon > 0 {
			gallons := float64(delta) / float64(m.cfg.PulsesPerGallon)
			// one-second sample scaled to a minute
			m.rate = gallons * secondsPerMinute
			m.totalGallons += gallons
		}
	} else {
		if active {
			m.secondsSinceLastPulse++
		}
		m.rate = 0
	}
	if !active {
		m.secondsSinceLastPulse = 0
	}
	m.lastCount = m.total

	sample := Sample{Delta: delta, Rate: m.rate}

	m.secondsInMinute++
	if m.secondsInMinute >= secondsPerMinute {
		sample.MinuteClosed = true
		if active && m.cfg.MinPulsesPerMinute > 0 && m.pulsesThisMinute < m.cfg.MinPulsesPerMinute {
			sample.InsufficientFlow = true
			m.minuteCheckFailed = true
		}
		m.secondsInMinute = 0
		m.pulsesThisMinute = 0
	}

	return sample
}

// Starved reports whether the pump has run FaultTimeout seconds without a
// pulse.
func (m *Meter) Starved() bool {
	return m.cfg.FaultTimeout > 0 && m.secondsSinceLastPulse >= m.cfg.FaultTimeout
}

// IsFaulted combines the starvation check (only meaningful while the pump
// is active) with the latched per-minute check.
func (m *Meter) IsFaulted(active bool) bool {
	return (active && m.Starved()) || m.minuteCheckFailed
}

func (m *Meter) Rate() float64 {
	return m.rate
}

func (m *Meter) TotalGallons() float64 {
	return m.totalGallons
}

func (m *Meter) SecondsSinceLastPulse() uint32 {
	return m.secondsSinceLastPulse
}

// ClearFault zeroes the fault bookkeeping. Rate and totals are kept.
func (m *Meter) ClearFault() {
	m.secondsSinceLastPulse = 0
	m.pulsesThisMinute = 0
	m.secondsInMinute = 0
	m.minuteCheckFailed = false
}

// Reset zeroes every counter, including the stored pulse count.
func (m *Meter) Reset() {
	m.total = 0
	m.lastCount = 0
	m.rate = 0
	m.totalGallons = 0
	m.ClearFault()
}
