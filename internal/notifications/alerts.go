package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

// Sender is the part of Notifier the alert sink needs.
type Sender interface {
	Send(ctx context.Context, title, body string, priority int, tags ...string) error
}

const (
	priorityDefault = 3
	priorityUrgent  = 5
)

// Alerts turns pump faults into push notifications. Output changes are not
// alerted on; they happen every few minutes in freezing weather.
type Alerts struct {
	sender  Sender
	timeout time.Duration
	log     zerolog.Logger
}

func NewAlerts(sender Sender, log zerolog.Logger) *Alerts {
	return &Alerts{sender: sender, timeout: 45 * time.Second, log: log}
}

func (a *Alerts) StateChanged(pump.State, bool) {}

func (a *Alerts) FaultRaised(kind pump.FaultKind, state pump.State) {
	title := "Pump fault: " + kind.String()
	body := fmt.Sprintf("Pump stopped. Water %.1f°C, flow %.2f gpm, %d cycles so far. Clear the fault once the loop is checked.",
		state.CurrentTemperature, state.FlowRate, state.CycleCount)

	a.send(title, body, priorityUrgent, "warning", "droplet")
}

// FaultCleared reports an operator clearing a latched fault.
func (a *Alerts) FaultCleared(kind pump.FaultKind) {
	if kind == pump.FaultNone {
		return
	}
	a.send("Pump fault cleared", fmt.Sprintf("%s cleared, pump back under automatic control.", kind), priorityDefault, "white_check_mark")
}

func (a *Alerts) send(title, body string, priority int, tags ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.sender.Send(ctx, title, body, priority, tags...); err != nil {
		a.log.Error().Err(err).Str("title", title).Msg("Failed to send pump alert")
	}
}

func (a *Alerts) SensorDisabled(lastGood float64, anomalies int) {
	body := fmt.Sprintf("Water temperature sensor disabled after %d bad readings. Holding last good value %.1f°C.", anomalies, lastGood)
	a.send("Temperature sensor disabled", body, priorityUrgent, "thermometer", "warning")
}

func (a *Alerts) SensorRecovered(temp float64) {
	a.send("Temperature sensor recovered", fmt.Sprintf("Reading %.1f°C again.", temp), priorityDefault, "thermometer")
}
