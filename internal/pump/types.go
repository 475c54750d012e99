package pump

import (
	"fmt"
	"strings"
)

type Mode int

const (
	ModeAuto Mode = iota
	ModeManualOn
	ModeManualOff
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManualOn:
		return "manual_on"
	case ModeManualOff:
		return "manual_off"
	case ModeDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return ModeAuto, nil
	case "manual_on":
		return ModeManualOn, nil
	case "manual_off":
		return ModeManualOff, nil
	case "disabled":
		return ModeDisabled, nil
	default:
		return ModeAuto, fmt.Errorf("invalid pump mode %q (valid: auto, manual_on, manual_off, disabled)", s)
	}
}

// Phase is the duty-cycle sub-state while freeze protection is engaged.
type Phase int

const (
	PhaseOff Phase = iota
	PhaseOn
)

func (p Phase) String() string {
	if p == PhaseOn {
		return "on"
	}
	return "off"
}

type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultNoFlow
	FaultInsufficientFlow
	FaultExcessiveRuntime
)

// String returns the fault reason reported to operators.
func (f FaultKind) String() string {
	switch f {
	case FaultNoFlow:
		return "No flow detected"
	case FaultInsufficientFlow:
		return "Insufficient flow"
	case FaultExcessiveRuntime:
		return "Excessive runtime"
	default:
		return ""
	}
}

// Code is a stable identifier for metric labels and tags.
func (f FaultKind) Code() string {
	switch f {
	case FaultNoFlow:
		return "no_flow"
	case FaultInsufficientFlow:
		return "insufficient_flow"
	case FaultExcessiveRuntime:
		return "excessive_runtime"
	default:
		return "none"
	}
}

type Config struct {
	EnablePump bool `json:"enable_pump"`

	FreezeThreshold  float64 `json:"freeze_threshold"`  // °C
	FreezeHysteresis float64 `json:"freeze_hysteresis"` // °C

	OnDuration  uint32 `json:"on_duration"`  // seconds
	OffDuration uint32 `json:"off_duration"` // seconds
	MaxOnTime   uint32 `json:"max_on_time"`  // seconds

	FaultTimeout       uint32 `json:"fault_timeout"` // seconds without a pulse
	MinPulsesPerMinute uint32 `json:"min_pulses_per_minute"`
	PulsesPerGallon    uint32 `json:"pulses_per_gallon"`

	AutoMode bool `json:"auto_mode"`
}

func DefaultConfig() Config {
	return Config{
		EnablePump:         true,
		FreezeThreshold:    1.1, // 34°F
		FreezeHysteresis:   0.5,
		OnDuration:         300,
		OffDuration:        600,
		MaxOnTime:          1800,
		FaultTimeout:       60,
		MinPulsesPerMinute: 10,
		PulsesPerGallon:    1000,
		AutoMode:           true,
	}
}

// State is a read-only snapshot of the controller output.
type State struct {
	IsEnabled     bool
	IsActive      bool
	FaultDetected bool
	Fault         FaultKind

	OnTime     uint32 // seconds
	OffTime    uint32 // seconds
	CycleCount uint32

	FlowRate           float64 // gallons per minute
	TotalPulses        uint32
	TotalGallons       float64
	CurrentTemperature float64 // °C

	Seconds uint64 // simulated seconds since start
}

// Input is what the outside world reports for one tick.
type Input struct {
	Temperature float64
	PulseCount  uint32
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventFaultRaised
)

func (k EventKind) String() string {
	if k == EventFaultRaised {
		return "fault_raised"
	}
	return "state_changed"
}

// Event is one notification in the order the sink received it. Tick returns
// the events it produced, preceded by any forced-off transition a setter
// caused since the previous tick.
type Event struct {
	Kind      EventKind
	State     State
	WasActive bool
	Fault     FaultKind
}
