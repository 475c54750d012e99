package operator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

const (
	ActionSetMode         = "set_mode"
	ActionSetManual       = "set_manual"
	ActionEnable          = "enable"
	ActionDisable         = "disable"
	ActionClearFault      = "clear_fault"
	ActionResetStatistics = "reset_statistics"
)

// Command is the message form of an operator action, as received on the
// MQTT command topic.
type Command struct {
	Action string `json:"action"`
	Mode   string `json:"mode,omitempty"`
	On     *bool  `json:"on,omitempty"`
}

func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return cmd, cmd.validate()
}

func (c Command) validate() error {
	switch c.Action {
	case ActionSetMode:
		if _, err := pump.ParseMode(c.Mode); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	case ActionSetManual:
		if c.On == nil {
			return fmt.Errorf("%w: set_manual requires \"on\"", ErrInvalidCommand)
		}
	case ActionEnable, ActionDisable, ActionClearFault, ActionResetStatistics:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}
	return nil
}

func (s *Service) Execute(ctx context.Context, cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	switch cmd.Action {
	case ActionSetMode:
		mode, _ := pump.ParseMode(cmd.Mode)
		return s.SetMode(ctx, mode)
	case ActionSetManual:
		return s.SetManualState(ctx, *cmd.On)
	case ActionEnable:
		return s.Enable(ctx)
	case ActionDisable:
		return s.Disable(ctx)
	case ActionClearFault:
		_, err := s.ClearFault(ctx)
		return err
	default:
		return s.ResetStatistics(ctx)
	}
}
