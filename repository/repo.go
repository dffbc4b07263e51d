package repository

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"recorder-agent/entities"
)

// ChunkStore is the durable local store for sessions and their ordered
// media chunks. It is the single source of truth for what has been
// recorded so far and must survive process restarts.
type ChunkStore interface {
	Transaction(ctx context.Context, callback func(tx *gorm.DB) error) error
	GetDB() *gorm.DB
	CreateSession(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	FindSessionById(ctx context.Context, id uuid.UUID) (*entities.RecordingSession, error)
	UpdateSessionPause(ctx context.Context, id uuid.UUID, pausedAt *time.Time, totalPausedMs int64) error
	AppendChunk(ctx context.Context, sessionId uuid.UUID, index int, payload []byte, capturedAt time.Time) error
	NextChunkIndex(ctx context.Context, sessionId uuid.UUID) (int, error)
	GetChunksBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entities.RecordingChunk, error)
	DeleteSession(ctx context.Context, sessionId uuid.UUID) error
	Close() error
}

type store struct {
	db *gorm.DB
}

// Open connects to (or creates) the embedded store at path and applies
// migrations. The parent directory is created if missing.
func Open(path string) (ChunkStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&entities.RecordingSession{}, &entities.RecordingChunk{}); err != nil {
		return nil, err
	}

	return &store{db: db}, nil
}

func (s *store) GetDB() *gorm.DB {
	return s.db
}

func (s *store) Transaction(ctx context.Context, callback func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(callback)
}

func (s *store) CreateSession(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	session := &entities.RecordingSession{
		ID:            id,
		StartedAt:     startedAt,
		PausedAt:      nil,
		TotalPausedMs: 0,
	}
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *store) FindSessionById(ctx context.Context, id uuid.UUID) (*entities.RecordingSession, error) {
	session := &entities.RecordingSession{}
	err := s.db.WithContext(ctx).First(session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *store) UpdateSessionPause(ctx context.Context, id uuid.UUID, pausedAt *time.Time, totalPausedMs int64) error {
	updates := map[string]interface{}{
		"paused_at":       pausedAt,
		"total_paused_ms": totalPausedMs,
	}
	return s.db.WithContext(ctx).Model(&entities.RecordingSession{}).Where("id = ?", id).Updates(updates).Error
}

func (s *store) AppendChunk(ctx context.Context, sessionId uuid.UUID, index int, payload []byte, capturedAt time.Time) error {
	chunk := &entities.RecordingChunk{
		SessionId:  sessionId,
		ChunkIndex: index,
		Payload:    payload,
		CapturedAt: capturedAt,
	}
	return s.db.WithContext(ctx).Create(chunk).Error
}

// NextChunkIndex returns the index the next appended chunk must carry,
// so a session resumed after a page reload keeps its sequence gap-free.
func (s *store) NextChunkIndex(ctx context.Context, sessionId uuid.UUID) (int, error) {
	var max *int
	err := s.db.WithContext(ctx).Model(&entities.RecordingChunk{}).
		Where("session_id = ?", sessionId).
		Select("MAX(chunk_index)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (s *store) GetChunksBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entities.RecordingChunk, error) {
	var chunks []*entities.RecordingChunk
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionId).Order("chunk_index ASC").Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteSession removes the session record and all of its chunks in one
// transaction so a concurrent reader never observes a half-deleted session.
func (s *store) DeleteSession(ctx context.Context, sessionId uuid.UUID) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionId).Delete(&entities.RecordingChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", sessionId).Delete(&entities.RecordingSession{}).Error
	})
}

func (s *store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
