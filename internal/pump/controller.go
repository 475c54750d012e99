// Package pump implements the freeze-protection pump controller: operating
// mode arbitration, the AUTO duty cycle with temperature hysteresis, flow
// and runtime fault detection, and run statistics.
//
// The controller does no I/O and has no notion of wall-clock time. Time
// advances only through Tick, Step, or Advance, one simulated second per
// call, which keeps every run deterministic and replayable.
package pump

import (
	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/flowmeter"
)

const defaultTemperature = 20.0

type Option func(*Controller)

// WithSink registers the observer notified of state changes and faults.
func WithSink(s Sink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// Controller is not safe for concurrent use. Callers serialize access.
type Controller struct {
	cfg         Config
	mode        Mode
	manualState bool
	state       State

	meter *flowmeter.Meter

	phase               Phase
	freezeActive        bool
	phaseElapsedSeconds uint32
	continuousOnSeconds uint32

	sink    Sink
	log     zerolog.Logger
	pending []Event
}

func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		mode:  ModeAuto,
		meter: flowmeter.New(meterConfig(cfg)),
		log:   zerolog.Nop(),
		state: State{
			IsEnabled:          true,
			CurrentTemperature: defaultTemperature,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetConfig(cfg)
	return c
}

func meterConfig(cfg Config) flowmeter.Config {
	return flowmeter.Config{
		PulsesPerGallon:    cfg.PulsesPerGallon,
		FaultTimeout:       cfg.FaultTimeout,
		MinPulsesPerMinute: cfg.MinPulsesPerMinute,
	}
}

// SetConfig replaces the configuration wholesale. It applies EnablePump and
// clears any latched fault; run statistics are kept.
func (c *Controller) SetConfig(cfg Config) {
	c.cfg = cfg
	c.meter.SetConfig(meterConfig(cfg))
	c.state.IsEnabled = cfg.EnablePump
	c.ClearFault()

	if !c.state.IsEnabled {
		c.forceOff()
	}
}

func (c *Controller) Config() Config {
	return c.cfg
}

// SetMode selects the operating mode. Changing to a different mode resets
// the AUTO duty cycle so no stale phase carries over. The output is only
// dropped when the new mode cannot keep the pump running; otherwise the next
// tick decides, so a running pump does not cycle off and on.
func (c *Controller) SetMode(m Mode) {
	if m == c.mode {
		return
	}

	c.log.Info().
		Str("from", c.mode.String()).
		Str("to", m.String()).
		Msg("Pump mode changed")

	c.mode = m
	c.resetCycle()
	c.continuousOnSeconds = 0

	switch m {
	case ModeDisabled, ModeManualOff:
		c.forceOff()
	case ModeManualOn:
		if !c.manualState {
			c.forceOff()
		}
	}
}

func (c *Controller) Mode() Mode {
	return c.mode
}

// SetManualState sets the requested output for MANUAL_ON. It takes effect
// on the next tick.
func (c *Controller) SetManualState(on bool) {
	c.manualState = on
	if !on && c.mode == ModeManualOn {
		c.forceOff()
	}
}

func (c *Controller) ManualState() bool {
	return c.manualState
}

func (c *Controller) SetTemperature(t float64) {
	c.state.CurrentTemperature = t
}

// SetFlowPulses records the cumulative pulse count seen by the flow meter.
func (c *Controller) SetFlowPulses(n uint32) {
	c.state.TotalPulses = n
	c.meter.RecordPulses(n)
}

func (c *Controller) Enable() {
	c.state.IsEnabled = true
}

func (c *Controller) Disable() {
	c.state.IsEnabled = false
	c.forceOff()
}

// ClearFault drops the latched fault and the counters that feed fault
// detection. Run statistics are untouched.
func (c *Controller) ClearFault() {
	if c.state.FaultDetected {
		c.log.Info().Str("fault", c.state.Fault.String()).Msg("Pump fault cleared")
	}
	c.state.FaultDetected = false
	c.state.Fault = FaultNone
	c.meter.ClearFault()
	c.continuousOnSeconds = 0
}

// ResetStatistics zeroes run counters. Mode, fault and configuration are
// left alone.
func (c *Controller) ResetStatistics() {
	c.state.OnTime = 0
	c.state.OffTime = 0
	c.state.CycleCount = 0
	c.state.TotalPulses = 0
	c.state.FlowRate = 0
	c.state.TotalGallons = 0

	c.phaseElapsedSeconds = 0
	c.continuousOnSeconds = 0

	c.meter.Reset()
	c.log.Info().Msg("Pump statistics reset")
}

// Step applies the inputs for one second and advances the controller.
func (c *Controller) Step(in Input) []Event {
	c.SetTemperature(in.Temperature)
	c.SetFlowPulses(in.PulseCount)
	return c.Tick()
}

// Advance runs n sequential ticks and returns every event they produced.
func (c *Controller) Advance(n int) []Event {
	var events []Event
	for i := 0; i < n; i++ {
		events = append(events, c.Tick()...)
	}
	return events
}

// Tick advances the controller by one simulated second using the most
// recently supplied temperature and pulse count. The returned events include
// setter transitions delivered to the sink since the previous tick.
func (c *Controller) Tick() []Event {
	wasActive := c.state.IsActive
	c.state.Seconds++

	c.updateFlow()
	c.evaluate()
	c.checkNoFlow()

	if c.state.IsActive {
		c.state.OnTime++
		c.continuousOnSeconds++
	} else {
		c.state.OffTime++
		c.continuousOnSeconds = 0
	}

	if wasActive != c.state.IsActive {
		if c.state.IsActive {
			c.state.CycleCount++
		}
		c.emitStateChange(wasActive)
	}

	events := c.pending
	c.pending = nil
	return events
}

func (c *Controller) updateFlow() {
	sample := c.meter.Tick(c.state.IsActive)
	c.state.FlowRate = sample.Rate
	c.state.TotalGallons = c.meter.TotalGallons()

	if sample.InsufficientFlow {
		c.raiseFault(FaultInsufficientFlow)
	}
}

// evaluate applies fault override, then mode dispatch, then the runtime
// cutoff, in that order.
func (c *Controller) evaluate() {
	if c.state.FaultDetected {
		c.state.IsActive = false
		c.resetCycle()
		return
	}

	switch c.mode {
	case ModeDisabled, ModeManualOff:
		c.state.IsActive = false
	case ModeManualOn:
		c.state.IsActive = c.state.IsEnabled && c.manualState
	case ModeAuto:
		c.evaluateAuto()
	}

	if c.state.IsActive && c.continuousOnSeconds >= c.cfg.MaxOnTime {
		c.state.IsActive = false
		c.raiseFault(FaultExcessiveRuntime)
	}
}

func (c *Controller) evaluateAuto() {
	if !c.state.IsEnabled || !c.cfg.AutoMode {
		c.state.IsActive = false
		c.resetCycle()
		return
	}

	start := c.cfg.FreezeThreshold
	stop := c.cfg.FreezeThreshold + c.cfg.FreezeHysteresis
	temp := c.state.CurrentTemperature

	if !c.freezeActive && temp <= start {
		c.freezeActive = true
		c.phase = PhaseOn
		c.phaseElapsedSeconds = 0
		c.log.Info().
			Float64("temp", temp).
			Float64("threshold", start).
			Msg("Freeze protection engaged")
	} else if c.freezeActive && temp > stop {
		c.resetCycle()
		c.log.Info().
			Float64("temp", temp).
			Float64("release", stop).
			Msg("Freeze protection released")
	}

	if !c.freezeActive {
		c.state.IsActive = false
		return
	}

	c.phaseElapsedSeconds++

	if c.phase == PhaseOn {
		c.state.IsActive = true
		if c.phaseElapsedSeconds >= atLeastOne(c.cfg.OnDuration) {
			c.phase = PhaseOff
			c.phaseElapsedSeconds = 0
		}
		return
	}

	c.state.IsActive = false
	if c.phaseElapsedSeconds >= atLeastOne(c.cfg.OffDuration) {
		c.phase = PhaseOn
		c.phaseElapsedSeconds = 0
	}
}

func (c *Controller) checkNoFlow() {
	if !c.state.IsActive || c.state.FaultDetected {
		return
	}
	if c.meter.Starved() {
		c.state.IsActive = false
		c.raiseFault(FaultNoFlow)
	}
}

// raiseFault latches a fault. Only the first fault since the last clear is
// reported.
func (c *Controller) raiseFault(kind FaultKind) {
	if c.state.FaultDetected {
		return
	}
	c.state.FaultDetected = true
	c.state.Fault = kind

	c.log.Warn().
		Str("fault", kind.String()).
		Float64("temp", c.state.CurrentTemperature).
		Float64("flow_gpm", c.state.FlowRate).
		Uint32("continuous_on", c.continuousOnSeconds).
		Msg("Pump fault detected")

	ev := Event{Kind: EventFaultRaised, State: c.state, Fault: kind}
	c.pending = append(c.pending, ev)
	if c.sink != nil {
		c.sink.FaultRaised(kind, ev.State)
	}
}

func (c *Controller) emitStateChange(wasActive bool) {
	c.log.Info().
		Bool("active", c.state.IsActive).
		Str("mode", c.mode.String()).
		Uint32("cycles", c.state.CycleCount).
		Msg("Pump output changed")

	ev := Event{Kind: EventStateChanged, State: c.state, WasActive: wasActive}
	c.pending = append(c.pending, ev)
	if c.sink != nil {
		c.sink.StateChanged(ev.State, wasActive)
	}
}

// forceOff drops the output outside a tick when the pump became ineligible.
// The sink hears about it now; the event is held for the next Tick's result.
func (c *Controller) forceOff() {
	if !c.state.IsActive {
		return
	}
	c.state.IsActive = false
	c.log.Info().Str("mode", c.mode.String()).Msg("Pump output forced off")

	ev := Event{Kind: EventStateChanged, State: c.state, WasActive: true}
	c.pending = append(c.pending, ev)
	if c.sink != nil {
		c.sink.StateChanged(ev.State, true)
	}
}

func (c *Controller) resetCycle() {
	c.phase = PhaseOff
	c.freezeActive = false
	c.phaseElapsedSeconds = 0
}

func atLeastOne(v uint32) uint32 {
	if v < 1 {
		return 1
	}
	return v
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Phase() Phase {
	return c.phase
}

// FreezeActive reports whether the hysteresis latch has engaged the duty
// cycle.
func (c *Controller) FreezeActive() bool {
	return c.freezeActive
}

func (c *Controller) IsRunning() bool       { return c.state.IsActive }
func (c *Controller) IsEnabled() bool       { return c.state.IsEnabled }
func (c *Controller) IsInFault() bool       { return c.state.FaultDetected }
func (c *Controller) Fault() FaultKind      { return c.state.Fault }
func (c *Controller) FlowRate() float64     { return c.state.FlowRate }
func (c *Controller) TotalOnTime() uint32   { return c.state.OnTime }
func (c *Controller) TotalOffTime() uint32  { return c.state.OffTime }
func (c *Controller) CycleCount() uint32    { return c.state.CycleCount }
func (c *Controller) TotalPulses() uint32   { return c.state.TotalPulses }
func (c *Controller) TotalGallons() float64 { return c.state.TotalGallons }
