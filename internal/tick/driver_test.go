package tick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

type scriptedTemp struct {
	readings []float64
	valid    []bool
	i        int
}

func (s *scriptedTemp) Temperature() (float64, bool) {
	idx := s.i
	if idx >= len(s.readings) {
		idx = len(s.readings) - 1
	} else {
		s.i++
	}
	return s.readings[idx], s.valid[idx]
}

type constTemp float64

func (c constTemp) Temperature() (float64, bool) { return float64(c), true }

// counter adds perTick pulses every time it is read.
type counter struct {
	perTick uint32
	total   uint32
}

func (c *counter) PulseCount() uint32 {
	c.total += c.perTick
	return c.total
}

func (c *counter) ResetPulses() { c.total = 0 }

func newController() *pump.Controller {
	cfg := pump.DefaultConfig()
	cfg.OnDuration = 5
	cfg.OffDuration = 5
	cfg.MaxOnTime = 30
	cfg.FaultTimeout = 3
	cfg.MinPulsesPerMinute = 0
	return pump.New(cfg)
}

func TestStep_FeedsSourcesIntoController(t *testing.T) {
	d := NewDriver(newController(), constTemp(0.0), &counter{perTick: 1000})

	d.Step()
	d.Step()

	state := d.Controller.State()
	assert.Equal(t, 0.0, state.CurrentTemperature)
	assert.Equal(t, uint32(2000), state.TotalPulses)
	assert.Equal(t, 60.0, state.FlowRate)
	assert.True(t, state.IsActive)
}

func TestStep_InvalidReadingKeepsLastTemperature(t *testing.T) {
	temp := &scriptedTemp{
		readings: []float64{0.5, -127.0, 85.0},
		valid:    []bool{true, false, false},
	}
	d := NewDriver(newController(), temp, &counter{perTick: 10})

	d.Step()
	require.Equal(t, 0.5, d.Controller.State().CurrentTemperature)

	d.Step()
	assert.Equal(t, 0.5, d.Controller.State().CurrentTemperature)
	d.Step()
	assert.Equal(t, 0.5, d.Controller.State().CurrentTemperature)
	assert.True(t, d.Controller.IsRunning())
}

func TestStep_NilSourcesKeepInputs(t *testing.T) {
	c := newController()
	c.SetTemperature(-2.0)
	c.SetFlowPulses(7)
	d := NewDriver(c, nil, nil)

	d.Step()
	assert.Equal(t, -2.0, c.State().CurrentTemperature)
	assert.Equal(t, uint32(7), c.TotalPulses())
}

func TestAdvance_MatchesRepeatedStep(t *testing.T) {
	bulk := NewDriver(newController(), constTemp(-1.0), &counter{perTick: 3})
	single := NewDriver(newController(), constTemp(-1.0), &counter{perTick: 3})

	bulkEvents := bulk.Advance(500)
	var singleEvents []pump.Event
	for i := 0; i < 500; i++ {
		singleEvents = append(singleEvents, single.Step()...)
	}

	assert.Equal(t, single.Controller.State(), bulk.Controller.State())
	assert.Equal(t, singleEvents, bulkEvents)
}

func TestAdvance_NoFlowWithoutPulses(t *testing.T) {
	d := NewDriver(newController(), constTemp(0.0), &counter{perTick: 0})
	events := d.Advance(5)

	assert.True(t, d.Controller.IsInFault())
	assert.Equal(t, pump.FaultNoFlow, d.Controller.Fault())

	var faults int
	for _, ev := range events {
		if ev.Kind == pump.EventFaultRaised {
			faults++
		}
	}
	assert.Equal(t, 1, faults)
}

func TestResetStatistics_ResetsPulseSource(t *testing.T) {
	pulses := &counter{perTick: 100}
	d := NewDriver(newController(), constTemp(0.0), pulses)
	d.Advance(3)
	require.Equal(t, uint32(300), d.Controller.TotalPulses())

	d.ResetStatistics()
	assert.Equal(t, uint32(0), pulses.total)

	d.Step()
	// one second of flow, not the old total replayed as a spike
	assert.InDelta(t, 6.0, d.Controller.FlowRate(), 1e-9)
	assert.InDelta(t, 0.1, d.Controller.TotalGallons(), 1e-9)
}

func TestCapture(t *testing.T) {
	c := newController()
	c.SetMode(pump.ModeManualOn)
	c.SetManualState(true)

	snap := Capture(c)
	assert.Equal(t, pump.ModeManualOn, snap.Mode)
	assert.True(t, snap.ManualState)
	assert.Equal(t, c.Config(), snap.Config)
	assert.False(t, snap.FreezeActive)
}
