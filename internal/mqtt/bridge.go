package mqtt

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/model"
	"github.com/thatsimonsguy/pump-controller/internal/operator"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

// Bridge connects the controller to a Publisher: events as they happen and
// a retained status snapshot on a fixed interval.
type Bridge struct {
	pub Publisher
	now func() time.Time
	log zerolog.Logger
}

func NewBridge(pub Publisher, log zerolog.Logger) *Bridge {
	return &Bridge{pub: pub, now: time.Now, log: log}
}

func (b *Bridge) StateChanged(state pump.State, wasActive bool) {
	b.publish(pump.Event{Kind: pump.EventStateChanged, State: state, WasActive: wasActive})
}

func (b *Bridge) FaultRaised(kind pump.FaultKind, state pump.State) {
	b.publish(pump.Event{Kind: pump.EventFaultRaised, State: state, Fault: kind})
}

func (b *Bridge) publish(ev pump.Event) {
	if err := b.pub.PublishEvent(model.NewEventRecord(ev, b.now())); err != nil {
		b.log.Warn().Err(err).Str("event", ev.Kind.String()).Msg("Failed to publish pump event")
	}
}

// RunStatus publishes status every interval until ctx is cancelled.
func (b *Bridge) RunStatus(ctx context.Context, interval time.Duration, status func(context.Context) (model.PumpStatus, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s, err := status(ctx)
			if err != nil {
				if ctx.Err() == nil {
					b.log.Warn().Err(err).Msg("Failed to read pump status")
				}
				continue
			}
			if err := b.pub.PublishStatus(s); err != nil {
				b.log.Warn().Err(err).Msg("Failed to publish pump status")
			}
		}
	}
}

type Executor interface {
	Execute(ctx context.Context, cmd operator.Command) error
}

// CommandHandlerFor decodes command payloads and runs them. Paho calls the
// handler on its own goroutine, so a bounded wait keeps a stalled tick loop
// from backing up the client.
func CommandHandlerFor(exec Executor, log zerolog.Logger) CommandHandler {
	return func(payload []byte) {
		cmd, err := operator.ParseCommand(payload)
		if err != nil {
			log.Warn().Err(err).Str("payload", string(payload)).Msg("Rejected MQTT command")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := exec.Execute(ctx, cmd); err != nil {
			log.Error().Err(err).Str("action", cmd.Action).Msg("MQTT command failed")
			return
		}
		log.Info().Str("action", cmd.Action).Msg("MQTT command applied")
	}
}
