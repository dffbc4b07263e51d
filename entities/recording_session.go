package entities

import (
	"time"

	"github.com/google/uuid"
)

type RecordingSession struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	StartedAt     time.Time  `json:"started_at" gorm:"not null;index:idx_recording_sessions_started_at"`
	PausedAt      *time.Time `json:"paused_at"`
	TotalPausedMs int64      `json:"total_paused_ms" gorm:"not null;default:0"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"not null"`
}

func (RecordingSession) TableName() string {
	return "recording_sessions"
}

// Elapsed reports wall-clock recording time excluding paused intervals.
// While paused the value is frozen at the moment pause was requested.
func (s *RecordingSession) Elapsed(now time.Time) time.Duration {
	if s.PausedAt != nil {
		return s.PausedAt.Sub(s.StartedAt) - time.Duration(s.TotalPausedMs)*time.Millisecond
	}
	return now.Sub(s.StartedAt) - time.Duration(s.TotalPausedMs)*time.Millisecond
}
