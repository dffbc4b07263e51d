package handler

import (
	"context"

	"github.com/rs/zerolog"

	"recorder-agent/dto"
	"recorder-agent/relay"
	"recorder-agent/service"
)

// ActionRegistry is the agent's tab registry: the standalone binary has no
// tab surface, so its only job is translating relayed recorder actions into
// session transitions. Illegal transitions are no-ops on the service.
type ActionRegistry struct {
	Session *service.SessionService
}

func (r *ActionRegistry) ListTabs(context.Context) ([]relay.Tab, error) {
	return nil, nil
}

func (r *ActionRegistry) Inject(context.Context, int, dto.RelayMessage) error {
	return nil
}

func (r *ActionRegistry) SendOneShot(ctx context.Context, _ int, msg dto.RelayMessage) error {
	if msg.Kind != dto.KindRecorderAction {
		return nil
	}
	switch msg.Action {
	case dto.ActionPause:
		r.Session.Pause(ctx)
	case dto.ActionResume:
		r.Session.Resume(ctx)
	case dto.ActionStop:
		r.Session.Stop(ctx)
	case dto.ActionRestart:
		if _, err := r.Session.Restart(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("relayed restart failed")
		}
	}
	return nil
}
