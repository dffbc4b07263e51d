package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"recorder-agent/constant"
	"recorder-agent/dto"
	"recorder-agent/media"
	"recorder-agent/repository"
	"recorder-agent/surface"
)

var ErrSessionActive = errors.New("a recording session is already active")

// Announcer pushes session lifecycle and state to the cross-context relay.
// Every call is best-effort; the session never blocks on it.
type Announcer interface {
	RecordingStarted(ctx context.Context, snapshot dto.RecordingSnapshot, deviceId string)
	RecordingState(ctx context.Context, snapshot dto.RecordingSnapshot)
	RecordingStopped(ctx context.Context)
}

type NopAnnouncer struct{}

func (NopAnnouncer) RecordingStarted(context.Context, dto.RecordingSnapshot, string) {}
func (NopAnnouncer) RecordingState(context.Context, dto.RecordingSnapshot)           {}
func (NopAnnouncer) RecordingStopped(context.Context)                                {}

type SessionOptions struct {
	ChunkInterval time.Duration
	StateInterval time.Duration
	Encoder       media.ChunkEncoder
	Now           func() time.Time
}

// SessionService owns the recording state machine:
//
//	idle -> settingUp -> recording <-> paused -> stopped
//
// At most one session is active at a time. A stopped session is terminal;
// restart stops the current session and immediately starts a fresh one with
// the same config.
type SessionService struct {
	store     repository.ChunkStore
	provider  media.DeviceProvider
	host      surface.Host
	announcer Announcer
	opts      SessionOptions

	mu      sync.Mutex
	state   constant.SessionState
	current *activeSession
	lastCfg *dto.RecorderConfig
}

type activeSession struct {
	id          uuid.UUID
	cfg         dto.RecorderConfig
	startedAt   time.Time
	pausedAt    *time.Time
	totalPaused time.Duration

	captures     *media.CaptureSet
	comp         *media.Compositor
	rec          *media.Recorder
	surf         *surface.Surface
	stopCtx      context.CancelFunc
	torn         bool
	finalElapsed time.Duration
}

func NewSessionService(store repository.ChunkStore, provider media.DeviceProvider, host surface.Host, announcer Announcer, opts SessionOptions) *SessionService {
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = media.DefaultChunkInterval
	}
	if opts.StateInterval <= 0 {
		opts.StateInterval = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	return &SessionService{
		store:     store,
		provider:  provider,
		host:      host,
		announcer: announcer,
		opts:      opts,
		state:     constant.SessionStateIdle,
	}
}

func (s *SessionService) State() constant.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SessionService) SessionID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return uuid.UUID{}, false
	}
	return s.current.id, true
}

// Elapsed is recording time excluding pauses, frozen while paused.
func (s *SessionService) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *SessionService) elapsedLocked() time.Duration {
	if s.current == nil {
		return 0
	}
	cur := s.current
	if s.state == constant.SessionStateStopped {
		return cur.finalElapsed
	}
	if cur.pausedAt != nil {
		return cur.pausedAt.Sub(cur.startedAt) - cur.totalPaused
	}
	return s.opts.Now().Sub(cur.startedAt) - cur.totalPaused
}

func (s *SessionService) Snapshot() dto.RecordingSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := dto.RecordingSnapshot{
		ElapsedMs: s.elapsedLocked().Milliseconds(),
		IsPaused:  s.state == constant.SessionStatePaused,
	}
	if s.current != nil {
		snap.WebcamEnabled = s.current.cfg.WebcamEnabled
		snap.WebcamShape = s.current.cfg.WebcamShape
	}
	return snap
}

// Start acquires devices, persists the session record, and begins emitting
// chunks. Any setup failure releases everything acquired in the attempt and
// returns the machine to idle with a typed error.
func (s *SessionService) Start(ctx context.Context, cfg dto.RecorderConfig) (uuid.UUID, error) {
	return s.start(ctx, cfg, nil)
}

// Recover re-opens a persisted session after a process restart, appending
// new chunks directly after the highest stored index so the sequence stays
// gap-free. A pause that was open when the process died ends at recovery.
func (s *SessionService) Recover(ctx context.Context, id uuid.UUID, cfg dto.RecorderConfig) error {
	_, err := s.start(ctx, cfg, &id)
	return err
}

func (s *SessionService) start(ctx context.Context, cfg dto.RecorderConfig, resume *uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	if s.state != constant.SessionStateIdle && s.state != constant.SessionStateStopped {
		s.mu.Unlock()
		return uuid.UUID{}, ErrSessionActive
	}
	s.state = constant.SessionStateSettingUp
	s.mu.Unlock()

	log := zerolog.Ctx(ctx)

	fail := func(err error) (uuid.UUID, error) {
		s.mu.Lock()
		s.state = constant.SessionStateIdle
		s.mu.Unlock()
		return uuid.UUID{}, err
	}

	captures, err := media.AcquireForConfig(ctx, s.provider, cfg)
	if err != nil {
		log.Error().Err(err).Msg("device acquisition failed")
		return fail(err)
	}

	var id uuid.UUID
	var startedAt time.Time
	var totalPaused time.Duration
	startIndex := 0
	if resume != nil {
		row, err := s.store.FindSessionById(ctx, *resume)
		if err != nil {
			captures.Release()
			log.Error().Err(err).Str("session_id", resume.String()).Msg("session record not found for recovery")
			return fail(err)
		}
		id = row.ID
		startedAt = row.StartedAt
		totalPaused = time.Duration(row.TotalPausedMs) * time.Millisecond
		if row.PausedAt != nil {
			totalPaused += s.opts.Now().Sub(*row.PausedAt)
			if err := s.store.UpdateSessionPause(ctx, id, nil, totalPaused.Milliseconds()); err != nil {
				log.Error().Err(err).Msg("failed to close interrupted pause")
			}
		}
		startIndex, err = s.store.NextChunkIndex(ctx, id)
		if err != nil {
			captures.Release()
			log.Error().Err(err).Msg("failed to resolve next chunk index")
			return fail(err)
		}
	} else {
		id = uuid.New()
		startedAt = s.opts.Now()
		if err := s.store.CreateSession(ctx, id, startedAt); err != nil {
			captures.Release()
			log.Error().Err(err).Msg("failed to create session record")
			return fail(err)
		}
	}

	cur := &activeSession{
		id:          id,
		cfg:         cfg,
		startedAt:   startedAt,
		totalPaused: totalPaused,
		captures:    captures,
	}

	// With a floating companion surface the primary recording stays
	// screen-only; without one, webcam frames are flattened into the
	// recording by the compositor.
	recordStream := captures.Screen
	if cfg.WebcamEnabled && !cfg.UseFloatingWindow {
		width, height := media.PresetDimensions(cfg.Quality)
		comp, err := media.NewCompositor(captures.Screen, captures.Camera, media.CompositorOptions{
			Width:    width,
			Height:   height,
			Position: cfg.WebcamPosition,
			Shape:    cfg.WebcamShape,
		})
		if err != nil {
			captures.Release()
			if resume == nil {
				_ = s.store.DeleteSession(ctx, id)
			}
			log.Error().Err(err).Msg("compositor setup failed")
			return fail(err)
		}
		cur.comp = comp
		recordStream = comp.Output()
	}

	if cfg.WebcamEnabled {
		var host surface.Host
		if cfg.UseFloatingWindow {
			host = s.host
		}
		cur.surf = surface.Open(captures.Camera, host, transportAdapter{s: s}, surface.Options{
			Shape:   cfg.WebcamShape,
			OnClose: func() { s.onSurfaceClosed(id) },
		})
	}

	sink := func(ctx context.Context, index int, payload []byte, capturedAt time.Time) error {
		err := s.store.AppendChunk(ctx, id, index, payload, capturedAt)
		if err != nil {
			// A failed append is logged and recording continues; that
			// chunk's data is lost rather than the whole session.
			log.Error().Err(err).Int("chunk_index", index).Str("session_id", id.String()).Msg("chunk append failed")
		}
		return err
	}
	cur.rec = media.StartRecorder(recordStream, sink, media.RecorderOptions{
		ChunkInterval: s.opts.ChunkInterval,
		Encoder:       s.opts.Encoder,
		StartIndex:    startIndex,
		OnError: func(err error) {
			log.Error().Err(err).Str("session_id", id.String()).Msg("recorder error")
		},
	})

	broadcastCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cur.stopCtx = cancel

	s.mu.Lock()
	s.current = cur
	cfgCopy := cfg
	s.lastCfg = &cfgCopy
	s.state = constant.SessionStateRecording
	s.mu.Unlock()

	s.announcer.RecordingStarted(broadcastCtx, s.Snapshot(), cfg.VideoDeviceId)
	go s.broadcastState(broadcastCtx)

	log.Info().Str("session_id", id.String()).Msg("recording started")
	return id, nil
}

func (s *SessionService) broadcastState(ctx context.Context) {
	ticker := time.NewTicker(s.opts.StateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.announcer.RecordingState(ctx, s.Snapshot())
		}
	}
}

// Pause freezes chunk emission and records pausedAt. No-op unless recording.
func (s *SessionService) Pause(ctx context.Context) {
	s.mu.Lock()
	if s.state != constant.SessionStateRecording || s.current == nil {
		s.mu.Unlock()
		return
	}
	cur := s.current
	now := s.opts.Now()
	cur.pausedAt = &now
	cur.rec.Pause()
	s.state = constant.SessionStatePaused
	id, pausedAt, total := cur.id, cur.pausedAt, cur.totalPaused
	s.mu.Unlock()

	if err := s.store.UpdateSessionPause(ctx, id, pausedAt, total.Milliseconds()); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to persist pause")
	}
}

// Resume accumulates the pause interval into totalPaused and returns to
// recording. No-op unless paused.
func (s *SessionService) Resume(ctx context.Context) {
	s.mu.Lock()
	if s.state != constant.SessionStatePaused || s.current == nil || s.current.pausedAt == nil {
		s.mu.Unlock()
		return
	}
	cur := s.current
	cur.totalPaused += s.opts.Now().Sub(*cur.pausedAt)
	cur.pausedAt = nil
	cur.rec.Resume()
	s.state = constant.SessionStateRecording
	id, total := cur.id, cur.totalPaused
	s.mu.Unlock()

	if err := s.store.UpdateSessionPause(ctx, id, nil, total.Milliseconds()); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to persist resume")
	}
}

// Stop flushes the final chunk, releases every acquired resource, and moves
// to the terminal stopped state. Idempotent: a second call finds nothing
// left to release and returns immediately.
func (s *SessionService) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.current == nil || s.current.torn {
		s.mu.Unlock()
		return
	}
	cur := s.current
	cur.finalElapsed = s.elapsedLocked()
	cur.torn = true
	s.state = constant.SessionStateStopped
	s.mu.Unlock()

	cur.stopCtx()
	cur.rec.Stop()
	if cur.surf != nil {
		cur.surf.Close()
	}
	if cur.comp != nil {
		cur.comp.Stop()
	}
	cur.captures.Release()
	s.announcer.RecordingStopped(ctx)
	zerolog.Ctx(ctx).Info().Str("session_id", cur.id.String()).Msg("recording stopped")
}

// Restart stops the current session and immediately starts a fresh one with
// the same config, without re-resolving devices from scratch.
func (s *SessionService) Restart(ctx context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	cfg := s.lastCfg
	s.mu.Unlock()
	if cfg == nil {
		return uuid.UUID{}, errors.New("no previous session to restart")
	}
	s.Stop(ctx)
	return s.Start(ctx, *cfg)
}

// Discard deletes a session and all of its chunks from the local store.
func (s *SessionService) Discard(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteSession(ctx, id)
}

func (s *SessionService) onSurfaceClosed(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.id == id {
		s.current.surf = nil
	}
}

// transportAdapter wires surface control buttons to the state machine;
// illegal transitions are already no-ops on the service.
type transportAdapter struct {
	s *SessionService
}

func (t transportAdapter) Pause()  { t.s.Pause(context.Background()) }
func (t transportAdapter) Resume() { t.s.Resume(context.Background()) }
func (t transportAdapter) Stop()   { t.s.Stop(context.Background()) }
func (t transportAdapter) Restart() {
	if _, err := t.s.Restart(context.Background()); err != nil && !errors.Is(err, ErrSessionActive) {
		zerolog.Ctx(context.Background()).Error().Err(err).Msg("restart from surface failed")
	}
}
