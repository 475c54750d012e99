// Package device keeps the physical pump relay in step with the controller.
package device

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/gpio"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

// Pump drives a relay from controller state changes. It runs synchronously
// inside the tick so the relay never lags the reported state.
type Pump struct {
	relay gpio.Relay
	log   zerolog.Logger

	mu sync.Mutex
	on bool

	onError func(error)
}

// NewPump wraps relay. onError, if set, is called whenever the relay cannot
// be driven.
func NewPump(relay gpio.Relay, onError func(error), log zerolog.Logger) *Pump {
	return &Pump{relay: relay, onError: onError, log: log}
}

func (p *Pump) StateChanged(state pump.State, wasActive bool) {
	p.set(state.IsActive)
}

// FaultRaised is a no-op; a fault that stops the pump arrives as its own
// state change.
func (p *Pump) FaultRaised(pump.FaultKind, pump.State) {}

// ForceOff drives the relay off regardless of controller state.
func (p *Pump) ForceOff() {
	p.set(false)
}

func (p *Pump) On() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

func (p *Pump) set(on bool) {
	p.mu.Lock()
	err := p.relay.Set(on)
	if err == nil {
		p.on = on
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Error().Err(err).Bool("on", on).Msg("Failed to drive pump relay")
		// called unlocked; the handler may force the relay off again
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	if on {
		p.log.Info().Msg("Pump relay energized")
	} else {
		p.log.Info().Msg("Pump relay released")
	}
}
