package handler

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"recorder-agent/dto"
)

const (
	CommandQueue      = "recorder_commands"
	CommandRoutingKey = "recorder.command"
)

// CommandHandler applies remote recorder commands delivered over the broker.
// The command is funneled through the same action path the overlay uses, so
// illegal transitions stay no-ops.
func CommandHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var cmd dto.RecorderCommandMessage
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		return err
	}

	action := dto.RelayMessage{Kind: dto.KindRecorderAction, Action: cmd.Action}
	if err := action.Validate(); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("action", string(cmd.Action)).Msg("remote recorder command")
	reg := ActionRegistry{Session: deps.SessionService}
	return reg.SendOneShot(ctx, 0, action)
}
