// Package tick advances the pump controller. Driver pulls one reading from
// each source per simulated second; Runner paces the Driver in real time
// for the daemon and serializes every other access to the controller.
package tick

import (
	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

// TemperatureSource reports the current water temperature in °C. ok is
// false when the sensor has no usable reading.
type TemperatureSource interface {
	Temperature() (temp float64, ok bool)
}

// PulseSource reports the cumulative flow-meter pulse count.
type PulseSource interface {
	PulseCount() uint32
}

// PulseResetter is implemented by pulse sources whose counter can be
// zeroed along with the controller statistics.
type PulseResetter interface {
	ResetPulses()
}

type Driver struct {
	Controller  *pump.Controller
	Temperature TemperatureSource
	Pulses      PulseSource
}

func NewDriver(c *pump.Controller, temp TemperatureSource, pulses PulseSource) *Driver {
	return &Driver{Controller: c, Temperature: temp, Pulses: pulses}
}

// Step reads both sources and runs one controller tick. A missing or
// failed temperature reading keeps the previous temperature.
func (d *Driver) Step() []pump.Event {
	state := d.Controller.State()
	in := pump.Input{
		Temperature: state.CurrentTemperature,
		PulseCount:  state.TotalPulses,
	}

	if d.Temperature != nil {
		if t, ok := d.Temperature.Temperature(); ok {
			in.Temperature = t
		}
	}
	if d.Pulses != nil {
		in.PulseCount = d.Pulses.PulseCount()
	}

	return d.Controller.Step(in)
}

// Advance is exactly n sequential Steps.
func (d *Driver) Advance(n int) []pump.Event {
	var events []pump.Event
	for i := 0; i < n; i++ {
		events = append(events, d.Step()...)
	}
	return events
}

// ResetStatistics zeroes the controller counters and, when supported, the
// pulse source so the next delta starts from zero instead of the old total.
func (d *Driver) ResetStatistics() {
	d.Controller.ResetStatistics()
	if r, ok := d.Pulses.(PulseResetter); ok {
		r.ResetPulses()
	}
}

// Snapshot is everything an operator surface shows about the controller.
type Snapshot struct {
	State        pump.State
	Config       pump.Config
	Mode         pump.Mode
	Phase        pump.Phase
	FreezeActive bool
	ManualState  bool
}

func Capture(c *pump.Controller) Snapshot {
	return Snapshot{
		State:        c.State(),
		Config:       c.Config(),
		Mode:         c.Mode(),
		Phase:        c.Phase(),
		FreezeActive: c.FreezeActive(),
		ManualState:  c.ManualState(),
	}
}
