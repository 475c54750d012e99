// Package gpio drives the pump relay and counts flow meter pulses. The real
// implementation uses the Linux GPIO character device; the fakes let the
// rest of the controller run without hardware.
package gpio

import "sync/atomic"

// Relay switches the pump on or off.
type Relay interface {
	Set(on bool) error
	Close() error
}

// Counter is a monotonically increasing pulse count shared between an edge
// handler and the tick loop.
type Counter struct {
	n atomic.Uint32
}

func (c *Counter) Add(delta uint32) {
	c.n.Add(delta)
}

// PulseCount satisfies tick.PulseSource.
func (c *Counter) PulseCount() uint32 {
	return c.n.Load()
}

// ResetPulses satisfies tick.PulseResetter.
func (c *Counter) ResetPulses() {
	c.n.Store(0)
}

// level converts a logical relay state to the raw line value.
func level(on, activeHigh bool) int {
	if on == activeHigh {
		return 1
	}
	return 0
}
