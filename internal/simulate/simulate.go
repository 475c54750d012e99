// Package simulate stands in for the temperature probe and flow meter when
// the controller runs without hardware.
package simulate

import (
	"math"
	"math/rand"
	"sync"
)

// Temperature is a scripted water temperature. The zero value reads 0°C.
type Temperature struct {
	mu      sync.Mutex
	value   float64
	step    float64 // added after every read
	jitter  float64
	rng     *rand.Rand
	failing bool
}

// NewTemperature starts at start°C. Each read moves the value by step and
// adds uniform noise in [-jitter, jitter] when rng is set.
func NewTemperature(start, step, jitter float64, rng *rand.Rand) *Temperature {
	return &Temperature{value: start, step: step, jitter: jitter, rng: rng}
}

func (t *Temperature) Temperature() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failing {
		return 0, false
	}
	v := t.value
	if t.rng != nil && t.jitter > 0 {
		v += (t.rng.Float64()*2 - 1) * t.jitter
	}
	t.value += t.step
	return v, true
}

func (t *Temperature) Set(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = v
}

func (t *Temperature) SetStep(step float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.step = step
}

// Fail makes reads report an invalid sample until called with false.
func (t *Temperature) Fail(failing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failing = failing
}

// Flow produces meter pulses at a fixed rate while the pump runs. The
// running check stands in for water actually moving through the loop.
type Flow struct {
	mu      sync.Mutex
	perTick float64
	carry   float64
	total   uint32
	running func() bool
	blocked bool
}

// NewFlow emits pulsesPerTick pulses on every PulseCount call while
// running reports true. Fractional rates accumulate across calls.
func NewFlow(pulsesPerTick float64, running func() bool) *Flow {
	return &Flow{perTick: pulsesPerTick, running: running}
}

func (f *Flow) PulseCount() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked || (f.running != nil && !f.running()) {
		return f.total
	}
	f.carry += f.perTick
	whole := math.Floor(f.carry)
	f.carry -= whole
	f.total += uint32(whole)
	return f.total
}

func (f *Flow) ResetPulses() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total = 0
	f.carry = 0
}

// Block simulates a stuck impeller or closed valve.
func (f *Flow) Block(blocked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked = blocked
}

func (f *Flow) SetRate(pulsesPerTick float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perTick = pulsesPerTick
}
