package model

import (
	"time"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
	"github.com/thatsimonsguy/pump-controller/internal/tick"
)

// PumpStatus is the wire form of a controller snapshot, shared by the API,
// MQTT status messages and the debug CLI.
type PumpStatus struct {
	Mode         string `json:"mode"`
	Phase        string `json:"phase"`
	FreezeActive bool   `json:"freeze_active"`
	ManualState  bool   `json:"manual_state"`

	Enabled       bool   `json:"enabled"`
	Active        bool   `json:"active"`
	FaultDetected bool   `json:"fault_detected"`
	Fault         string `json:"fault,omitempty"`

	Temperature  float64 `json:"temperature_c"`
	FlowRate     float64 `json:"flow_rate_gpm"`
	TotalPulses  uint32  `json:"total_pulses"`
	TotalGallons float64 `json:"total_gallons"`

	OnTime     uint32 `json:"on_time_s"`
	OffTime    uint32 `json:"off_time_s"`
	CycleCount uint32 `json:"cycle_count"`
	Uptime     uint64 `json:"uptime_s"`

	Config pump.Config `json:"config"`
}

func NewPumpStatus(s tick.Snapshot) PumpStatus {
	return PumpStatus{
		Mode:          s.Mode.String(),
		Phase:         s.Phase.String(),
		FreezeActive:  s.FreezeActive,
		ManualState:   s.ManualState,
		Enabled:       s.State.IsEnabled,
		Active:        s.State.IsActive,
		FaultDetected: s.State.FaultDetected,
		Fault:         s.State.Fault.String(),
		Temperature:   s.State.CurrentTemperature,
		FlowRate:      s.State.FlowRate,
		TotalPulses:   s.State.TotalPulses,
		TotalGallons:  s.State.TotalGallons,
		OnTime:        s.State.OnTime,
		OffTime:       s.State.OffTime,
		CycleCount:    s.State.CycleCount,
		Uptime:        s.State.Seconds,
		Config:        s.Config,
	}
}

// EventRecord is one logged state change or fault.
type EventRecord struct {
	ID          int64     `json:"id"`
	Time        time.Time `json:"time"`
	Kind        string    `json:"kind"`
	Active      bool      `json:"active"`
	Fault       string    `json:"fault,omitempty"`
	Temperature float64   `json:"temperature_c"`
	FlowRate    float64   `json:"flow_rate_gpm"`
	CycleCount  uint32    `json:"cycle_count"`
}

func NewEventRecord(ev pump.Event, at time.Time) EventRecord {
	return EventRecord{
		Time:        at,
		Kind:        ev.Kind.String(),
		Active:      ev.State.IsActive,
		Fault:       ev.Fault.String(),
		Temperature: ev.State.CurrentTemperature,
		FlowRate:    ev.State.FlowRate,
		CycleCount:  ev.State.CycleCount,
	}
}

// Settings is the operator-controlled part of the controller that survives
// a restart.
type Settings struct {
	Mode        string      `json:"mode"`
	ManualState bool        `json:"manual_state"`
	Enabled     bool        `json:"enabled"`
	Pump        pump.Config `json:"pump"`
}

func SettingsFrom(s tick.Snapshot) Settings {
	return Settings{
		Mode:        s.Mode.String(),
		ManualState: s.ManualState,
		Enabled:     s.State.IsEnabled,
		Pump:        s.Config,
	}
}

// Apply restores persisted settings onto a controller. The pump config is
// applied first since SetConfig resets the enabled flag.
func (s Settings) Apply(c *pump.Controller) error {
	mode, err := pump.ParseMode(s.Mode)
	if err != nil {
		return err
	}
	c.SetConfig(s.Pump)
	c.SetMode(mode)
	c.SetManualState(s.ManualState)
	if s.Enabled {
		c.Enable()
	} else {
		c.Disable()
	}
	return nil
}
