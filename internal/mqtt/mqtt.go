// Package mqtt publishes pump events and status to a broker and accepts
// operator commands from it.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/thatsimonsguy/pump-controller/internal/model"
)

// Topics are relative to the configured prefix.
const (
	TopicEvents  = "events"
	TopicStatus  = "status"
	TopicOnline  = "online"
	TopicCommand = "command"
)

func Topic(prefix, name string) string {
	return strings.TrimRight(prefix, "/") + "/" + name
}

// Publisher publishes pump messages. Failures are returned, never fatal.
type Publisher interface {
	PublishEvent(ev model.EventRecord) error
	// PublishStatus sends a retained status snapshot.
	PublishStatus(status model.PumpStatus) error
	Close() error
}

// CommandHandler receives raw payloads from the command topic.
type CommandHandler func(payload []byte)

type ConnectionStatus interface {
	IsConnected() bool
}

type eventPayload struct {
	Pump eventBody `json:"pump"`
}

type eventBody struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	State       string  `json:"state"`
	Fault       string  `json:"fault,omitempty"`
	Temperature float64 `json:"temperature_c"`
	FlowRate    float64 `json:"flow_rate_gpm"`
	CycleCount  uint32  `json:"cycle_count"`
}

func FormatEvent(ev model.EventRecord) ([]byte, error) {
	state := "OFF"
	if ev.Active {
		state = "ON"
	}
	return json.Marshal(eventPayload{
		Pump: eventBody{
			Timestamp:   ev.Time.UTC().Format(time.RFC3339),
			Event:       strings.ToUpper(ev.Kind),
			State:       state,
			Fault:       ev.Fault,
			Temperature: ev.Temperature,
			FlowRate:    ev.FlowRate,
			CycleCount:  ev.CycleCount,
		},
	})
}

func FormatStatus(status model.PumpStatus) ([]byte, error) {
	return json.Marshal(status)
}
