package handler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"recorder-agent/constant"
	"recorder-agent/dto"
	"recorder-agent/media"
	"recorder-agent/repository"
	"recorder-agent/service"
)

func newActionFixture(t *testing.T) (*ActionRegistry, *service.SessionService) {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "recordings.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := service.NewSessionService(store, &media.SyntheticProvider{FPS: 30}, nil, service.NopAnnouncer{}, service.SessionOptions{
		ChunkInterval: 50 * time.Millisecond,
		StateInterval: 20 * time.Millisecond,
	})
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return &ActionRegistry{Session: svc}, svc
}

func action(a dto.OverlayAction) dto.RelayMessage {
	return dto.RelayMessage{Kind: dto.KindRecorderAction, Action: a}
}

func TestRelayedActionsDriveSession(t *testing.T) {
	reg, svc := newActionFixture(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, dto.RecorderConfig{Quality: constant.Quality720p}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := reg.SendOneShot(ctx, 0, action(dto.ActionPause)); err != nil {
		t.Fatalf("SendOneShot(pause): %v", err)
	}
	if svc.State() != constant.SessionStatePaused {
		t.Fatalf("state after pause = %s", svc.State())
	}

	if err := reg.SendOneShot(ctx, 0, action(dto.ActionResume)); err != nil {
		t.Fatalf("SendOneShot(resume): %v", err)
	}
	if svc.State() != constant.SessionStateRecording {
		t.Fatalf("state after resume = %s", svc.State())
	}

	if err := reg.SendOneShot(ctx, 0, action(dto.ActionStop)); err != nil {
		t.Fatalf("SendOneShot(stop): %v", err)
	}
	if svc.State() != constant.SessionStateStopped {
		t.Fatalf("state after stop = %s", svc.State())
	}
}

func TestRelayedRestartStartsFreshSession(t *testing.T) {
	reg, svc := newActionFixture(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, dto.RecorderConfig{Quality: constant.Quality720p})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := reg.SendOneShot(ctx, 0, action(dto.ActionRestart)); err != nil {
		t.Fatalf("SendOneShot(restart): %v", err)
	}
	if svc.State() != constant.SessionStateRecording {
		t.Fatalf("state after restart = %s", svc.State())
	}
	current, ok := svc.SessionID()
	if !ok {
		t.Fatal("no active session after restart")
	}
	if current == first {
		t.Error("restart did not provision a new session")
	}
}

func TestNonActionMessagesAreIgnored(t *testing.T) {
	reg, svc := newActionFixture(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, dto.RecorderConfig{Quality: constant.Quality720p}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := reg.SendOneShot(ctx, 0, dto.RelayMessage{Kind: dto.KindRecordingState}); err != nil {
		t.Fatalf("SendOneShot(state): %v", err)
	}
	if svc.State() != constant.SessionStateRecording {
		t.Fatalf("state = %s", svc.State())
	}
}
